package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/internal/analytics"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/registry"
)

// ConsumerName scopes this worker's idempotency claims.
const ConsumerName = "analytics"

// RowWriter persists warehouse rows.
type RowWriter interface {
	Insert(ctx context.Context, row analytics.MarketplaceEventRow) error
}

type claimer interface {
	Claim(ctx context.Context, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, eventID uuid.UUID) error
}

// Service consumes domain events from Pub/Sub and streams them into the
// warehouse, honoring Redis idempotency.
type Service struct {
	subscription *gcppubsub.Subscriber
	writer       RowWriter
	claims       claimer
	logg         *logger.Logger
}

// NewService creates the analytics worker. subscription may be nil in tests
// that drive process directly.
func NewService(subscription *gcppubsub.Subscriber, writer RowWriter, claims claimer, logg *logger.Logger) (*Service, error) {
	if writer == nil {
		return nil, errors.New("analytics writer is required")
	}
	if claims == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: subscription,
		writer:       writer,
		claims:       claims,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if s.subscription == nil {
		return errors.New("analytics subscription is required")
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := s.logg.WithFields(ctx, fields)

	eventType, err := enums.ParseOutboxEventType(attribute(msg, "event_type"))
	if err != nil {
		s.logg.Warn(logCtx, "skipping unknown event type")
		return processResult{}
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attribute(msg, "aggregate_type"))
	if err != nil {
		s.logg.Warn(logCtx, "invalid aggregate type")
		return processResult{}
	}
	aggregateID := attribute(msg, "aggregate_id")
	if aggregateID == "" {
		s.logg.Warn(logCtx, "aggregate id missing")
		return processResult{}
	}

	var envelope outbox.Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		s.logg.Error(logCtx, "invalid analytics envelope", err)
		return processResult{}
	}
	if strings.TrimSpace(envelope.EventID) == "" {
		envelope.EventID = attribute(msg, "event_id")
	}
	fields["event_id"] = envelope.EventID
	fields["event_type"] = string(eventType)
	fields["aggregate_type"] = string(aggregateType)
	fields["aggregate_id"] = aggregateID
	logCtx = s.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}

	decoded, err := registry.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		s.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{}
	}
	row, err := analytics.BuildRow(eventType, string(aggregateType), aggregateID, envelope, decoded)
	if err != nil {
		s.logg.Error(logCtx, "failed to build analytics row", err)
		return processResult{}
	}

	first, err := s.claims.Claim(logCtx, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !first {
		s.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if err := s.writer.Insert(logCtx, row); err != nil {
		s.logg.Error(logCtx, "analytics insert failed", fmt.Errorf("event %s: %w", eventID, err))
		_ = s.claims.Release(logCtx, eventID)
		return processResult{nack: true}
	}

	s.logg.Info(logCtx, "analytics event handled")
	return processResult{}
}

func attribute(msg *gcppubsub.Message, key string) string {
	return strings.TrimSpace(msg.Attributes[key])
}
