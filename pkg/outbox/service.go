package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
)

const envelopeVersion = 1

var errNoTx = errors.New("outbox writes need a transaction")

type eventWriter interface {
	Insert(tx *gorm.DB, row models.OutboxEvent) error
	QueuedSince(tx *gorm.DB, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID, since time.Time) (bool, error)
}

// Service queues domain events. It never publishes anything itself.
type Service struct {
	rows  eventWriter
	logg  *logger.Logger
	clock func() time.Time
}

func NewService(rows eventWriter, logg *logger.Logger) *Service {
	return &Service{rows: rows, logg: logg, clock: time.Now}
}

// Emit wraps event in an Envelope and inserts it through tx, so the event
// exists exactly when the surrounding write commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	row, envelope, err := s.toRow(event)
	if err != nil {
		return err
	}
	if err := s.rows.Insert(tx, row); err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitOnceSince emits only if no event of the same type for the same
// aggregate was queued at or after since. It reports whether it emitted.
func (s *Service) EmitOnceSince(ctx context.Context, tx *gorm.DB, since time.Time, event DomainEvent) (bool, error) {
	if tx == nil {
		return false, errNoTx
	}
	queued, err := s.rows.QueuedSince(tx, event.EventType, event.AggregateType, event.AggregateID, since)
	if err != nil || queued {
		return false, err
	}
	return true, s.Emit(ctx, tx, event)
}

func (s *Service) toRow(event DomainEvent) (models.OutboxEvent, Envelope, error) {
	switch {
	case !event.EventType.IsValid():
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("unknown event type %q", event.EventType)
	case !event.AggregateType.IsValid():
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("unknown aggregate type %q", event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return models.OutboxEvent{}, Envelope{}, errors.New("aggregate id required")
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	envelope := Envelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.Version <= 0 {
		envelope.Version = envelopeVersion
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = s.clock().UTC()
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("encode envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, envelope, nil
}
