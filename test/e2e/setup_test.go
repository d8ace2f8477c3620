// Package e2e_test drives the full HTTP stack through the Go SDK: config,
// bootstrap, gin router, analysis service and model fakes.
package e2e_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/BioRx-Intelligence/internal/bootstrap"
	"github.com/turtacn/BioRx-Intelligence/internal/config"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/common"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/llm"
	"github.com/turtacn/BioRx-Intelligence/internal/testutil"
	"github.com/turtacn/BioRx-Intelligence/pkg/client"
)

// testEnv is one running server plus the fakes behind it.
type testEnv struct {
	sdk   *client.Client
	model *llm.Fake
	logs  *testutil.LogRecorder
}

func baseConfig(variant string) *config.Config {
	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	cfg.Extraction.Variant = variant
	cfg.LLM.Provider = config.ProviderOllama
	cfg.LLM.OllamaHost = "http://127.0.0.1:1"
	config.ApplyDefaults(cfg)
	cfg.LLM.Retry.MaxRetries = 0
	return cfg
}

// nerServer answers every request with preds encoded the way a
// token-classification endpoint does.
func nerServer(t *testing.T, calls *int32, preds []common.TokenPrediction) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(preds)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// startEnv boots the server for cfg with model behind both tasks.
func startEnv(t *testing.T, cfg *config.Config, model *llm.Fake) *testEnv {
	t.Helper()
	logs := testutil.NewLogRecorder()
	app, err := bootstrap.New(context.Background(), cfg, logs, bootstrap.WithModel(model))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	srv := httptest.NewServer(app.Router("e2e"))
	t.Cleanup(srv.Close)

	sdk, err := client.NewClient(srv.URL,
		client.WithRetryMax(0),
		client.WithRetryWait(time.Millisecond, time.Millisecond),
	)
	require.NoError(t, err)
	return &testEnv{sdk: sdk, model: model, logs: logs}
}

// drugModel routes extraction prompts to extract and answers
// recommendation prompts by disease.
func drugModel(extract func(prompt string) string) *llm.Fake {
	return llm.NewFakeFunc(func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Text to analyze"):
			return extract(prompt), nil
		case strings.Contains(prompt, "lung cancer"):
			return "Cisplatin, Pembrolizumab", nil
		case strings.Contains(prompt, "diabetes"):
			return "Metformin, Insulin", nil
		default:
			return "Albuterol", nil
		}
	})
}
