package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
)

// MarketplaceEventRow mirrors the marketplace_events BigQuery schema. Columns
// that do not apply to an event type stay NULL.
type MarketplaceEventRow struct {
	EventID       string               `bigquery:"event_id"`
	EventType     string               `bigquery:"event_type"`
	AggregateType string               `bigquery:"aggregate_type"`
	AggregateID   string               `bigquery:"aggregate_id"`
	OccurredAt    time.Time            `bigquery:"occurred_at"`
	ActorID       cbigquery.NullString `bigquery:"actor_id"`
	ActorRole     cbigquery.NullString `bigquery:"actor_role"`
	GemID         cbigquery.NullString `bigquery:"gem_id"`
	OwnerID       cbigquery.NullString `bigquery:"owner_id"`
	UserID        cbigquery.NullString `bigquery:"user_id"`
	PaymentID     cbigquery.NullString `bigquery:"payment_id"`
	GemStatus     cbigquery.NullString `bigquery:"gem_status"`
	GemTier       cbigquery.NullString `bigquery:"gem_tier"`
	City          cbigquery.NullString `bigquery:"city"`
	Country       cbigquery.NullString `bigquery:"country"`
	PaymentStatus cbigquery.NullString `bigquery:"payment_status"`
	Purpose       cbigquery.NullString `bigquery:"purpose"`
	AmountCents   cbigquery.NullInt64  `bigquery:"amount_cents"`
	Currency      cbigquery.NullString `bigquery:"currency"`
	Score         cbigquery.NullInt64  `bigquery:"score"`
	Payload       cbigquery.NullJSON   `bigquery:"payload"`
}

// Schema is the marketplace_events table layout, partitioned on occurred_at.
func Schema() cbigquery.Schema {
	nullable := func(name string, kind cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: kind}
	}
	required := func(name string, kind cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: kind, Required: true}
	}
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required("aggregate_type", cbigquery.StringFieldType),
		required("aggregate_id", cbigquery.StringFieldType),
		required(PartitionField, cbigquery.TimestampFieldType),
		nullable("actor_id", cbigquery.StringFieldType),
		nullable("actor_role", cbigquery.StringFieldType),
		nullable("gem_id", cbigquery.StringFieldType),
		nullable("owner_id", cbigquery.StringFieldType),
		nullable("user_id", cbigquery.StringFieldType),
		nullable("payment_id", cbigquery.StringFieldType),
		nullable("gem_status", cbigquery.StringFieldType),
		nullable("gem_tier", cbigquery.StringFieldType),
		nullable("city", cbigquery.StringFieldType),
		nullable("country", cbigquery.StringFieldType),
		nullable("payment_status", cbigquery.StringFieldType),
		nullable("purpose", cbigquery.StringFieldType),
		nullable("amount_cents", cbigquery.IntegerFieldType),
		nullable("currency", cbigquery.StringFieldType),
		nullable("score", cbigquery.IntegerFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}

// PartitionField is the column marketplace_events is day-partitioned on.
const PartitionField = "occurred_at"

// BuildRow flattens a decoded domain event into a warehouse row. The raw
// envelope data is kept in the payload column.
func BuildRow(eventType enums.OutboxEventType, aggregateType, aggregateID string, envelope outbox.Envelope, decoded any) (MarketplaceEventRow, error) {
	row := MarketplaceEventRow{
		EventID:       envelope.EventID,
		EventType:     string(eventType),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    envelope.OccurredAt.UTC(),
	}
	if envelope.Actor != nil {
		row.ActorID = nullUUID(envelope.Actor.UserID)
		row.ActorRole = nullString(envelope.Actor.Role)
	}
	payload, err := EncodeJSON(envelope.Data)
	if err != nil {
		return MarketplaceEventRow{}, err
	}
	row.Payload = payload

	switch event := decoded.(type) {
	case *payloads.GemSubmittedEvent:
		row.GemID = nullUUID(event.GemID)
		row.OwnerID = nullUUID(event.OwnerID)
		row.City = nullString(event.City)
		row.Country = nullString(event.Country)
		row.GemStatus = nullString(string(enums.GemStatusPending))
	case *payloads.GemStatusChangedEvent:
		row.GemID = nullUUID(event.GemID)
		row.OwnerID = nullUUID(event.OwnerID)
		row.GemStatus = nullString(string(event.Status))
	case *payloads.GemExpiringSoonEvent:
		row.GemID = nullUUID(event.GemID)
		row.OwnerID = nullUUID(event.OwnerID)
	case *payloads.GemExpiredEvent:
		row.GemID = nullUUID(event.GemID)
		row.OwnerID = nullUUID(event.OwnerID)
		row.GemStatus = nullString(string(enums.GemStatusExpired))
	case *payloads.PaymentStatusEvent:
		row.PaymentID = nullUUID(event.PaymentID)
		row.UserID = nullUUID(event.UserID)
		if event.GemID != nil {
			row.GemID = nullUUID(*event.GemID)
		}
		row.PaymentStatus = nullString(string(event.Status))
		row.Purpose = nullString(string(event.Purpose))
		row.GemTier = nullString(string(event.Tier))
		row.Currency = nullString(string(event.Currency))
		row.AmountCents = cbigquery.NullInt64{Int64: event.Amount.Shift(2).Round(0).IntPart(), Valid: true}
	case *payloads.RatingCreatedEvent:
		row.GemID = nullUUID(event.GemID)
		row.OwnerID = nullUUID(event.OwnerID)
		row.UserID = nullUUID(event.AuthorID)
		row.Score = cbigquery.NullInt64{Int64: int64(event.Score), Valid: true}
	case *payloads.FavoriteCreatedEvent:
		row.GemID = nullUUID(event.GemID)
		row.OwnerID = nullUUID(event.OwnerID)
		row.UserID = nullUUID(event.UserID)
	case *payloads.SystemAnnouncementEvent:
	default:
		return MarketplaceEventRow{}, fmt.Errorf("no analytics mapping for %T", decoded)
	}
	return row, nil
}

// EncodeJSON wraps a payload for a BigQuery JSON column.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case json.RawMessage:
		if len(value) == 0 || string(value) == "null" {
			return cbigquery.NullJSON{}, nil
		}
		return cbigquery.NullJSON{Valid: true, JSONVal: string(value)}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}

func nullUUID(id uuid.UUID) cbigquery.NullString {
	if id == uuid.Nil {
		return cbigquery.NullString{}
	}
	return cbigquery.NullString{StringVal: id.String(), Valid: true}
}

func nullString(v string) cbigquery.NullString {
	return cbigquery.NullString{StringVal: v, Valid: v != ""}
}
