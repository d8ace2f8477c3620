// Package worker holds the Kafka message handlers of the background worker.
package worker

import (
	"context"
	"time"

	"github.com/turtacn/BioRx-Intelligence/internal/application/recommendation"
	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// DefaultHandlerTimeout bounds one warm-up.
const DefaultHandlerTimeout = 2 * time.Minute

// Recommender builds recommendations for a disease set.
type Recommender interface {
	Recommend(ctx context.Context, diseases biomed.DiseaseSet, mode recommendation.Mode) (biomed.RecommendationMap, error)
}

// CacheWarmer precomputes recommendations for every analysis.completed
// event so the follow-up recommend request is answered from the response
// cache.
type CacheWarmer struct {
	recommender Recommender
	mode        recommendation.Mode
	timeout     time.Duration
	logger      logging.Logger
}

// NewCacheWarmer creates a warmer recommending in mode.
func NewCacheWarmer(r Recommender, mode recommendation.Mode, logger logging.Logger) *CacheWarmer {
	return &CacheWarmer{
		recommender: r,
		mode:        mode,
		timeout:     DefaultHandlerTimeout,
		logger:      logging.OrNop(logger).Named("cache_warmer"),
	}
}

// Topic is the topic Handle consumes.
func (w *CacheWarmer) Topic() string { return kafka.TopicAnalysisCompleted }

// Handle is a kafka.MessageHandler. Undecodable messages fail with a
// serialization error so the consumer dead-letters them.
func (w *CacheWarmer) Handle(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return err
	}
	var event biomed.AnalysisCompletedEvent
	if err := env.DecodePayload(&event); err != nil {
		return err
	}
	if env.EventType != event.EventType() {
		return errors.New(errors.ErrCodeValidation, "unexpected event type "+env.EventType)
	}

	diseases := biomed.NewDiseaseSet(event.Diseases...)
	if diseases.IsEmpty() {
		w.logger.Debug("no diseases to warm", logging.String("session_id", event.SessionID))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	start := time.Now()
	recs, err := w.recommender.Recommend(ctx, diseases, w.mode)
	if err != nil {
		return err
	}
	w.logger.Info("recommendations warmed",
		logging.String("session_id", event.SessionID),
		logging.Int("diseases", diseases.Len()),
		logging.Int("recommendations", recs.Len()),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}
