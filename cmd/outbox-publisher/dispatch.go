package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/comanda-backend/pkg/db/models"
	"github.com/angelmondragon/comanda-backend/pkg/enums"
	"github.com/angelmondragon/comanda-backend/pkg/outbox/registry"
)

type outcome string

const (
	outcomePublished  outcome = "published"
	outcomeRetry      outcome = "retry"
	outcomeDeadLetter outcome = "dead_letter"
)

// dispatchResult is what happened to one outbox row on this attempt.
type dispatchResult struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	topic   string
	eventID string
	err     error
}

// dispatch resolves and publishes one row without touching the database.
func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) dispatchResult {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return dispatchResult{outcome: outcomeDeadLetter, reason: enums.OutboxDLQErrorReasonNonRetryable, err: err}
	}

	res := dispatchResult{topic: resolved.Descriptor.Topic, eventID: resolved.Envelope.EventID}
	err = s.publish(ctx, event, resolved)

	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		res.outcome = outcomePublished
	case errors.As(err, &nonRetryable):
		res.outcome = outcomeDeadLetter
		res.reason = enums.OutboxDLQErrorReasonNonRetryable
		res.err = err
	case event.AttemptCount+1 >= s.maxAttempts:
		res.outcome = outcomeDeadLetter
		res.reason = enums.OutboxDLQErrorReasonMaxAttempts
		res.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		res.outcome = outcomeRetry
		res.err = err
	}
	return res
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved.Envelope.EventID),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("topic %s: %w", topic, errNilPublishResult))
	}
	_, err := result.Get(publishCtx)
	return err
}

// messageAttributes carries the routing metadata consumers filter on, so they
// need not decode the envelope first.
func messageAttributes(event models.OutboxEvent, eventID string) map[string]string {
	return map[string]string{
		"event_id":       eventID,
		"tenant_id":      event.TenantID.String(),
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// settle records the dispatch result in the same transaction that claimed the row.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, res dispatchResult) error {
	ctx = s.logg.WithFields(ctx, s.logFields(event, res))
	s.metrics.ObserveOutboxPublish(string(event.EventType), string(res.outcome))

	switch res.outcome {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(ctx, "outbox event published")
	case outcomeRetry:
		s.logg.Warn(s.logg.WithField(ctx, "error", res.err.Error()), "outbox publish failed, will retry")
		if err := s.repo.MarkFailedTx(tx, event.ID, res.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	case outcomeDeadLetter:
		s.logg.Warn(s.logg.WithField(ctx, "error", res.err.Error()), "outbox event dead-lettered")
		if err := s.dlq.InsertTx(tx, s.deadLetter(event, res)); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, res.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	default:
		return fmt.Errorf("unknown dispatch outcome %q for %s", res.outcome, event.ID)
	}
	return nil
}

func (s *Service) deadLetter(event models.OutboxEvent, res dispatchResult) models.OutboxDLQ {
	var message *string
	if res.err != nil {
		msg := res.err.Error()
		message = &msg
	}
	return models.OutboxDLQ{
		EventID:       event.ID,
		TenantID:      event.TenantID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   res.reason,
		ErrorMessage:  message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
}

func (s *Service) logFields(event models.OutboxEvent, res dispatchResult) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"tenant_id":      event.TenantID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
		"outcome":        res.outcome,
	}
	if res.outcome != outcomePublished {
		fields["attempt_count"] = event.AttemptCount + 1
	}
	if res.eventID != "" {
		fields["event_id"] = res.eventID
	}
	if res.topic != "" {
		fields["topic"] = res.topic
	}
	if res.reason != "" {
		fields["error_reason"] = res.reason
	}
	return fields
}
