package cli

import (
	"context"

	"github.com/turtacn/BioRx-Intelligence/internal/application/analysis"
	"github.com/turtacn/BioRx-Intelligence/internal/application/recommendation"
	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/pkg/client"
)

// pipeline is the part of analysis.Service the commands use. It runs
// in-process or against a remote server.
type pipeline interface {
	Analyze(ctx context.Context, prev biomed.Session, input *analysis.AnalyzeInput) (biomed.Session, error)
	Recommend(ctx context.Context, s biomed.Session, mode recommendation.Mode) (biomed.Session, error)
}

// openPipeline returns the pipeline for the command, its default
// recommendation mode and a release function.
func (c *CLIContext) openPipeline(ctx context.Context) (pipeline, recommendation.Mode, func(), error) {
	if c.ServerAddr != "" {
		mode, err := recommendation.ParseMode(c.Config.Recommendation.Mode)
		if err != nil {
			return nil, "", nil, err
		}
		sdk, err := client.NewClient(c.ServerAddr, client.WithUserAgent("biorx-cli/"+Version))
		if err != nil {
			return nil, "", nil, err
		}
		return &remotePipeline{sdk: sdk}, mode, func() {}, nil
	}

	app, err := c.NewApp(ctx, c.Config, c.Logger)
	if err != nil {
		return nil, "", nil, err
	}
	return app.Service, app.Mode, func() { _ = app.Close() }, nil
}

type remotePipeline struct {
	sdk *client.Client
}

func (p *remotePipeline) Analyze(ctx context.Context, prev biomed.Session, input *analysis.AnalyzeInput) (biomed.Session, error) {
	var (
		resp *client.SessionResponse
		err  error
	)
	if input.Document != nil {
		resp, err = p.sdk.AnalyzeDocument(ctx, &client.DocumentRequest{
			FileName:      input.Document.Name,
			ContentType:   input.Document.ContentType,
			Data:          input.Document.Data,
			Text:          input.Text,
			Session:       &prev,
			RecommendMode: string(input.RecommendMode),
		})
	} else {
		resp, err = p.sdk.Analyze(ctx, &client.AnalyzeRequest{
			Text:          input.Text,
			Session:       &prev,
			RecommendMode: string(input.RecommendMode),
		})
	}
	if err != nil {
		return prev, err
	}
	return resp.Session, nil
}

func (p *remotePipeline) Recommend(ctx context.Context, s biomed.Session, mode recommendation.Mode) (biomed.Session, error) {
	resp, err := p.sdk.Recommend(ctx, s, string(mode))
	if err != nil {
		return s, err
	}
	return resp.Session, nil
}
