package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/BioRx-Intelligence/internal/application/analysis"
	"github.com/turtacn/BioRx-Intelligence/internal/application/document"
	"github.com/turtacn/BioRx-Intelligence/internal/application/recommendation"
	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

type analyzeOptions struct {
	text       string
	file       string
	recommend  bool
	mode       string
	sessionIn  string
	sessionOut string
}

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [text...]",
		Short: "Extract biomedical entities from text or a document",
		Long: "Extract diseases, drugs, genes/proteins and symptoms. Input comes from\n" +
			"--file, --text, the positional arguments, or stdin when --text is \"-\".\n" +
			"A file takes precedence over text.",
		Example: "  biorx analyze \"Patient has lung cancer and diabetes.\" --recommend\n" +
			"  biorx analyze --file note.pdf --session-out session.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.text == "" && len(args) > 0 {
				opts.text = strings.Join(args, " ")
			}
			return runAnalyze(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.text, "text", "t", "", "clinical text to analyze (\"-\" reads stdin)")
	f.StringVarP(&opts.file, "file", "f", "", "document to analyze (.txt, .pdf, .docx, .csv)")
	f.BoolVarP(&opts.recommend, "recommend", "r", false, "recommend drugs for the detected diseases")
	f.StringVar(&opts.mode, "mode", "", "recommendation mode (per_disease, batch); defaults to config")
	f.StringVar(&opts.sessionIn, "session-in", "", "session file to continue from")
	f.StringVar(&opts.sessionOut, "session-out", "", "write the resulting session to this file")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *analyzeOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	input := &analysis.AnalyzeInput{Text: opts.text}
	if opts.text == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return errors.Wrap(err, errors.CodeInvalidParam, "reading stdin")
		}
		input.Text = string(raw)
	}
	if opts.file != "" {
		src, err := readSource(opts.file)
		if err != nil {
			return err
		}
		input.Document = src
	}

	prev := biomed.NewSession()
	if opts.sessionIn != "" {
		if prev, err = readSession(opts.sessionIn); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
	defer cancel()

	p, defaultMode, release, err := cliCtx.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer release()

	if opts.recommend {
		mode, err := resolveMode(opts.mode, defaultMode)
		if err != nil {
			return err
		}
		input.RecommendMode = mode
	}

	s, err := p.Analyze(ctx, prev, input)
	if err != nil {
		return err
	}
	cliCtx.Logger.Debug("analysis done",
		logging.String("session_id", s.ID),
		logging.Int("entities", len(s.Entities)),
	)
	if opts.sessionOut != "" {
		if err := writeSession(opts.sessionOut, s); err != nil {
			return err
		}
	}
	return printSession(cmd, cliCtx.OutputFormat, s)
}

func resolveMode(flag string, fallback recommendation.Mode) (recommendation.Mode, error) {
	if flag == "" {
		return fallback, nil
	}
	return recommendation.ParseMode(flag)
}

func readSource(path string) (*document.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "reading "+path)
	}
	return &document.Source{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
	}, nil
}

func readSession(path string) (biomed.Session, error) {
	var s biomed.Session
	data, err := os.ReadFile(path)
	if err != nil {
		return s, errors.Wrap(err, errors.CodeInvalidParam, "reading session file "+path)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, errors.Wrap(err, errors.CodeInvalidParam, "session file "+path+" is not a valid session")
	}
	return s, nil
}

func writeSession(path string, s biomed.Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "encoding session")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "writing session file")
	}
	return nil
}

type sessionOutput struct {
	Session biomed.Session `json:"session"`
	View    analysis.View  `json:"view"`
}

// printSession renders the entity table, the recommendations and any
// warning or info messages. A warning is output, not a failure.
func printSession(cmd *cobra.Command, format string, s biomed.Session) error {
	view := analysis.NewView(s)
	if format == OutputJSON {
		return printJSON(cmd, sessionOutput{Session: s, View: view})
	}

	out := cmd.OutOrStdout()
	if len(view.Rows) > 0 {
		table := tablewriter.NewWriter(out)
		table.Header(view.Columns)
		for _, row := range view.Rows {
			if err := table.Append(row); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "rendering table")
			}
		}
		if err := table.Render(); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "rendering table")
		}
	}
	if len(view.Diseases) > 0 {
		fmt.Fprintf(out, "Diseases: %s\n", strings.Join(view.Diseases, ", "))
	}
	if len(view.Recommendations) > 0 {
		fmt.Fprintln(out, color.GreenString("Recommended drugs:"))
		for _, line := range view.Recommendations {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
	for _, info := range view.Info {
		fmt.Fprintln(out, color.CyanString(info))
	}
	if view.Warning != "" {
		fmt.Fprintf(out, "%s %s\n", color.YellowString("Warning:"), view.Warning)
	}
	return nil
}
