package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/BioRx-Intelligence/internal/bootstrap"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// NewCacheCmd creates the cache command group.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear cached model answers in Redis",
	}
	cmd.AddCommand(newCachePurgeCmd(), newCacheForgetCmd())
	return cmd
}

func newCachePurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop every cached answer of the configured model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAnswerCache(cmd, func(ctx context.Context, cache *llm.Cached) error {
				n, err := cache.Purge(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached answers.\n", n)
				return nil
			})
		},
	}
}

func newCacheForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "forget <disease>...",
		Short:   "Drop the cached per-disease recommendation so the next query asks the model again",
		Example: "  biorx cache forget asthma \"type 2 diabetes\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompts := llm.MustPromptBuilder()
			return withAnswerCache(cmd, func(ctx context.Context, cache *llm.Cached) error {
				out := cmd.OutOrStdout()
				for _, disease := range args {
					prompt, err := prompts.PerDisease(disease)
					if err != nil {
						return errors.Wrap(err, errors.ErrCodeInternal, "building recommendation prompt")
					}
					forgotten, err := cache.Forget(ctx, prompt)
					if err != nil {
						return err
					}
					if forgotten {
						fmt.Fprintf(out, "%s %s\n", color.GreenString("forgotten:"), disease)
					} else {
						fmt.Fprintf(out, "%s %s\n", color.YellowString("not cached:"), disease)
					}
				}
				return nil
			})
		},
	}
}

// withAnswerCache builds the app and runs fn on its answer cache.
func withAnswerCache(cmd *cobra.Command, fn func(ctx context.Context, cache *llm.Cached) error) error {
	return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
		cache := app.Responses()
		if cache == nil {
			return errors.New(errors.ErrCodeServiceUnavailable, "redis cache is not enabled")
		}
		return fn(ctx, cache)
	})
}

// withApp builds the in-process app for maintenance commands, which always
// work against local infrastructure.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
	defer cancel()

	app, err := cliCtx.NewApp(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}
