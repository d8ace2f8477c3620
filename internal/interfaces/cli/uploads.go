package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/BioRx-Intelligence/internal/bootstrap"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// NewUploadsCmd creates the uploads command group.
func NewUploadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "List and delete archived uploads in MinIO",
	}
	cmd.AddCommand(newUploadsListCmd(), newUploadsRmCmd())
	return cmd
}

func newUploadsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <session-id>",
		Short: "List the documents archived for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUploads(cmd, func(ctx context.Context, repo minio.UploadRepository) error {
				objects, err := repo.ListSession(ctx, args[0])
				if err != nil {
					return err
				}
				cliCtx, _ := GetCLIContext(cmd)
				if cliCtx != nil && cliCtx.OutputFormat == OutputJSON {
					return printJSON(cmd, objects)
				}
				return printUploads(cmd, objects)
			})
		},
	}
}

func newUploadsRmCmd() *cobra.Command {
	var session bool
	cmd := &cobra.Command{
		Use:   "rm <object-key>...",
		Short: "Delete archived uploads by key, or every upload of a session with --session",
		Example: "  biorx uploads rm uploads/2026/03/14/5f0c.../visit.csv\n" +
			"  biorx uploads rm --session 5f0c...",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUploads(cmd, func(ctx context.Context, repo minio.UploadRepository) error {
				out := cmd.OutOrStdout()
				if session {
					for _, id := range args {
						n, err := repo.DeleteSession(ctx, id)
						if err != nil {
							return err
						}
						fmt.Fprintf(out, "Deleted %d uploads of session %s.\n", n, id)
					}
					return nil
				}
				for _, key := range args {
					ok, err := repo.Exists(ctx, key)
					if err != nil {
						return err
					}
					if !ok {
						return errors.New(errors.ErrCodeNotFound, "upload "+key+" not found")
					}
					if err := repo.Delete(ctx, key); err != nil {
						return err
					}
					fmt.Fprintf(out, "Deleted %s.\n", key)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&session, "session", false, "treat the arguments as session IDs")
	return cmd
}

func withUploads(cmd *cobra.Command, fn func(ctx context.Context, repo minio.UploadRepository) error) error {
	return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
		repo := app.Uploads()
		if repo == nil {
			return errors.New(errors.ErrCodeServiceUnavailable, "upload archive is not enabled")
		}
		return fn(ctx, repo)
	})
}

func printUploads(cmd *cobra.Command, objects []*minio.ObjectMetadata) error {
	out := cmd.OutOrStdout()
	if len(objects) == 0 {
		fmt.Fprintln(out, "No uploads archived for this session.")
		return nil
	}
	table := tablewriter.NewWriter(out)
	table.Header([]string{"File", "Type", "Size", "Archived", "Key"})
	for _, o := range objects {
		row := []string{
			o.Metadata[minio.MetaFileName],
			o.ContentType,
			strconv.FormatInt(o.Size, 10),
			o.LastModified.UTC().Format(time.RFC3339),
			o.ObjectKey,
		}
		if err := table.Append(row); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "rendering table")
		}
	}
	if err := table.Render(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "rendering table")
	}
	return nil
}
