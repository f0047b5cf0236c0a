package analytics

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
)

func TestBuildRowPayment(t *testing.T) {
	gemID := uuid.New()
	userID := uuid.New()
	event := &payloads.PaymentStatusEvent{
		PaymentID: uuid.New(),
		GemID:     &gemID,
		UserID:    userID,
		Status:    enums.PaymentStatusCompleted,
		Purpose:   enums.PaymentPurposeNewListing,
		Tier:      enums.GemTierFeatured,
		Amount:    decimal.RequireFromString("1499.50"),
		Currency:  enums.CurrencyKES,
		Source:    "callback",
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)
	occurred := time.Date(2026, 5, 2, 9, 0, 0, 0, time.FixedZone("EAT", 3*3600))

	row, err := BuildRow(enums.EventPaymentCompleted, "payment", event.PaymentID.String(), outbox.Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: occurred,
		Actor:      &outbox.ActorRef{UserID: userID, Role: "visitor"},
		Data:       data,
	}, event)
	require.NoError(t, err)
	require.Equal(t, occurred.UTC(), row.OccurredAt)
	require.Equal(t, gemID.String(), row.GemID.StringVal)
	require.Equal(t, userID.String(), row.ActorID.StringVal)
	require.Equal(t, "visitor", row.ActorRole.StringVal)
	require.True(t, row.AmountCents.Valid)
	require.Equal(t, int64(149950), row.AmountCents.Int64)
	require.Equal(t, string(enums.CurrencyKES), row.Currency.StringVal)
	require.False(t, row.Score.Valid)
	require.JSONEq(t, string(data), row.Payload.JSONVal)
}

func TestBuildRowAnnouncementLeavesColumnsNull(t *testing.T) {
	row, err := BuildRow(enums.EventSystemAnnouncement, "user", uuid.NewString(), outbox.Envelope{
		EventID: uuid.NewString(),
		Data:    json.RawMessage(`{"title":"Hi","message":"Welcome"}`),
	}, &payloads.SystemAnnouncementEvent{Title: "Hi", Message: "Welcome"})
	require.NoError(t, err)
	require.False(t, row.GemID.Valid)
	require.False(t, row.ActorID.Valid)
	require.True(t, row.Payload.Valid)
}

func TestBuildRowRejectsUnknownPayload(t *testing.T) {
	_, err := BuildRow(enums.EventGemSubmitted, "gem", uuid.NewString(), outbox.Envelope{}, struct{}{})
	require.Error(t, err)
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"foo": "bar"})
	require.NoError(t, err)
	require.True(t, nj.Valid)

	nj, err = EncodeJSON(nil)
	require.NoError(t, err)
	require.False(t, nj.Valid)

	nj, err = EncodeJSON(json.RawMessage(`null`))
	require.NoError(t, err)
	require.False(t, nj.Valid)

	raw := json.RawMessage(`{"foo":"baz"}`)
	nj, err = EncodeJSON(raw)
	require.NoError(t, err)
	require.Equal(t, string(raw), nj.JSONVal)
}

func TestSchemaCoversEveryRowColumn(t *testing.T) {
	columns := map[string]bool{}
	for _, field := range Schema() {
		columns[field.Name] = true
	}
	rowType := reflect.TypeOf(MarketplaceEventRow{})
	if rowType.NumField() != len(columns) {
		t.Fatalf("row has %d fields, schema has %d columns", rowType.NumField(), len(columns))
	}
	for i := range rowType.NumField() {
		tag := rowType.Field(i).Tag.Get("bigquery")
		if !columns[tag] {
			t.Fatalf("column %s missing from schema", tag)
		}
	}
}
