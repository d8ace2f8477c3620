package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

type recommendOptions struct {
	session    string
	mode       string
	sessionOut string
}

// NewRecommendCmd creates the recommend command.
func NewRecommendCmd() *cobra.Command {
	opts := &recommendOptions{}
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend drugs for the diseases of a saved session",
		Long: "Recommend commonly used drugs for every disease found by the last analysis.\n" +
			"The session comes from a previous \"biorx analyze --session-out\".",
		Example: "  biorx recommend --session session.json --mode batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecommend(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.session, "session", "s", "", "session file (required)")
	f.StringVar(&opts.mode, "mode", "", "recommendation mode (per_disease, batch); defaults to config")
	f.StringVar(&opts.sessionOut, "session-out", "", "write the updated session to this file")
	return cmd
}

func runRecommend(cmd *cobra.Command, opts *recommendOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	if opts.session == "" {
		return errors.InvalidParam("--session is required")
	}
	s, err := readSession(opts.session)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
	defer cancel()

	p, defaultMode, release, err := cliCtx.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer release()

	mode, err := resolveMode(opts.mode, defaultMode)
	if err != nil {
		return err
	}
	s, err = p.Recommend(ctx, s, mode)
	if err != nil {
		return err
	}
	if opts.sessionOut != "" {
		if err := writeSession(opts.sessionOut, s); err != nil {
			return err
		}
	}
	return printSession(cmd, cliCtx.OutputFormat, s)
}
