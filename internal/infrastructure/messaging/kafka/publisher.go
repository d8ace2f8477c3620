package kafka

import (
	"context"

	"github.com/turtacn/BioRx-Intelligence/internal/domain/biomed"
	"github.com/turtacn/BioRx-Intelligence/pkg/errors"
)

// TopicFor maps a domain event to its topic.
func TopicFor(event biomed.DomainEvent) (string, bool) {
	switch event.(type) {
	case biomed.AnalysisCompletedEvent, *biomed.AnalysisCompletedEvent:
		return TopicAnalysisCompleted, true
	case biomed.RecommendationCompletedEvent, *biomed.RecommendationCompletedEvent:
		return TopicRecommendationCompleted, true
	}
	return "", false
}

// EventPublisher publishes domain events as envelopes keyed by session.
type EventPublisher struct {
	producer Publisher
	source   string
}

func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer, source: SourceService}
}

// Publish wraps event in an envelope and writes it to its topic.
func (p *EventPublisher) Publish(ctx context.Context, event biomed.DomainEvent) error {
	topic, ok := TopicFor(event)
	if !ok {
		return errors.New(errors.ErrCodeValidation, "no topic for event "+event.EventType())
	}
	env, err := NewEventEnvelope(event.EventType(), p.source, event)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(topic, []byte(event.Key()))
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

func (p *EventPublisher) Close() error { return p.producer.Close() }
