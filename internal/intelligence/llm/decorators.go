package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/internal/intelligence/common"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// ---------------------------------------------------------------------------
// Cached
// ---------------------------------------------------------------------------

// ResponseCache is the subset of the Redis cache used to memoize answers.
type ResponseCache interface {
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

// Cached memoizes answers by model name and prompt. Model errors and blank
// answers are never cached. When the cache itself fails the call goes straight to the model.
type Cached struct {
	next    Model
	cache   ResponseCache
	ttl     time.Duration
	logger  logging.Logger
	metrics common.IntelligenceMetrics
}

// NewCached wraps next with cache.
func NewCached(next Model, cache ResponseCache, ttl time.Duration, logger logging.Logger, metrics common.IntelligenceMetrics) *Cached {
	if metrics == nil {
		metrics = common.NewNoopIntelligenceMetrics()
	}
	return &Cached{
		next:    next,
		cache:   cache,
		ttl:     ttl,
		logger:  logging.OrNop(logger).Named("llm_cache"),
		metrics: metrics,
	}
}

func (c *Cached) Name() string { return c.next.Name() }

func (c *Cached) Generate(ctx context.Context, prompt string) (string, error) {
	key := CacheKey(c.next.Name(), prompt)

	var (
		answer string
		loaded bool
	)
	err := c.cache.GetOrSet(ctx, key, &answer, c.ttl, func(ctx context.Context) (interface{}, error) {
		loaded = true
		out, err := c.next.Generate(ctx, prompt)
		if err != nil {
			return nil, &uncachedResult{err: err}
		}
		if strings.TrimSpace(out) == "" {
			return nil, &uncachedResult{answer: out}
		}
		return out, nil
	})

	var res *uncachedResult
	switch {
	case err == nil:
		c.metrics.RecordCacheAccess(ctx, !loaded, c.next.Name())
		return answer, nil
	case stderrors.As(err, &res):
		if res.err != nil {
			return "", res.err
		}
		c.metrics.RecordCacheAccess(ctx, false, c.next.Name())
		return res.answer, nil
	}
	c.logger.Warn("response cache unavailable, calling model directly",
		logging.String(logging.FieldModel, c.next.Name()),
		logging.Err(err),
	)
	return c.next.Generate(ctx, prompt)
}

// uncachedResult is a model outcome that must not be stored: a failed call
// or a blank answer. It is the loader's error so that every caller sharing
// one load receives it.
type uncachedResult struct {
	answer string
	err    error
}

func (u *uncachedResult) Error() string {
	if u.err != nil {
		return u.err.Error()
	}
	return "blank answer"
}

func (u *uncachedResult) Unwrap() error { return u.err }

// Forget drops the cached answer for prompt and reports whether one existed.
func (c *Cached) Forget(ctx context.Context, prompt string) (bool, error) {
	key := CacheKey(c.next.Name(), prompt)
	ok, err := c.cache.Exists(ctx, key)
	if err != nil || !ok {
		return false, cacheError(err, "checking cached answer")
	}
	if err := c.cache.Delete(ctx, key); err != nil {
		return false, cacheError(err, "deleting cached answer")
	}
	return true, nil
}

// Purge drops every cached answer of the wrapped model.
func (c *Cached) Purge(ctx context.Context) (int64, error) {
	n, err := c.cache.DeleteByPrefix(ctx, cacheKeyPrefix+c.next.Name()+":")
	if err != nil {
		return n, cacheError(err, "purging cached answers")
	}
	c.logger.Info("cached answers purged",
		logging.String(logging.FieldModel, c.next.Name()),
		logging.Int64("keys", n),
	)
	return n, nil
}

func cacheError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, errors.ErrCodeCacheError, msg)
}

const cacheKeyPrefix = "llm:"

// CacheKey derives the cache key for a model and prompt.
func CacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return cacheKeyPrefix + model + ":" + hex.EncodeToString(sum[:])
}

// ---------------------------------------------------------------------------
// Retrying
// ---------------------------------------------------------------------------

// RetryConfig holds retry settings.
type RetryConfig struct {
	MaxRetries        int           `json:"max_retries"`
	InitialBackoff    time.Duration `json:"initial_backoff"`
	MaxBackoff        time.Duration `json:"max_backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the service defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retrying retries failed calls with exponential backoff. Context
// cancellation and ModelUnavailable stop immediately.
type Retrying struct {
	next   Model
	config RetryConfig
	logger logging.Logger
}

// NewRetrying wraps next with retries.
func NewRetrying(next Model, cfg RetryConfig, logger logging.Logger) *Retrying {
	return &Retrying{next: next, config: cfg, logger: logging.OrNop(logger).Named("llm_retry")}
}

func (r *Retrying) Name() string { return r.next.Name() }

func (r *Retrying) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.config.InitialBackoff > 0 {
		b.InitialInterval = r.config.InitialBackoff
	}
	if r.config.MaxBackoff > 0 {
		b.MaxInterval = r.config.MaxBackoff
	}
	if r.config.BackoffMultiplier > 0 {
		b.Multiplier = r.config.BackoffMultiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.config.MaxRetries)), ctx)
}

func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var answer string
	attempt := 0
	op := func() error {
		attempt++
		out, err := r.next.Generate(ctx, prompt)
		if err == nil {
			answer = out
			return nil
		}
		if ctx.Err() != nil || stderrors.Is(err, context.Canceled) || errors.IsCode(err, errors.ErrCodeModelUnavailable) {
			return backoff.Permanent(err)
		}
		r.logger.Warn("generative call failed",
			logging.String(logging.FieldModel, r.next.Name()),
			logging.Int("attempt", attempt),
			logging.Err(err),
		)
		return err
	}
	if err := backoff.Retry(op, r.newBackOff(ctx)); err != nil {
		return "", err
	}
	return answer, nil
}

// ---------------------------------------------------------------------------
// Instrumented
// ---------------------------------------------------------------------------

// Instrumented records latency and outcome of every call.
type Instrumented struct {
	next     Model
	taskType string
	logger   logging.Logger
	metrics  common.IntelligenceMetrics
}

// NewInstrumented wraps next with metrics. taskType labels the metric.
func NewInstrumented(next Model, taskType string, logger logging.Logger, metrics common.IntelligenceMetrics) *Instrumented {
	if metrics == nil {
		metrics = common.NewNoopIntelligenceMetrics()
	}
	if taskType == "" {
		taskType = common.TaskGenerate
	}
	return &Instrumented{next: next, taskType: taskType, logger: logging.OrNop(logger).Named("llm"), metrics: metrics}
}

func (i *Instrumented) Name() string { return i.next.Name() }

func (i *Instrumented) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := i.next.Generate(ctx, prompt)
	elapsed := time.Since(start)

	i.metrics.RecordInference(ctx, &common.InferenceMetricParams{
		ModelName:   i.next.Name(),
		TaskType:    i.taskType,
		DurationMs:  float64(elapsed.Milliseconds()),
		Success:     err == nil,
		InputLength: len(prompt),
	})
	i.logger.Debug("generative call",
		logging.String(logging.FieldModel, i.next.Name()),
		logging.Int("prompt_len", len(prompt)),
		logging.Int("answer_len", len(out)),
		logging.Duration("elapsed", elapsed),
		logging.Bool("ok", err == nil),
	)
	return out, err
}

var (
	_ Model = (*Cached)(nil)
	_ Model = (*Retrying)(nil)
	_ Model = (*Instrumented)(nil)
)
