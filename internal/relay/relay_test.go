package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/metrics"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/registry"
)

func TestDrainPublishesAndContinuesPastFailures(t *testing.T) {
	first, second := newEvent(t, 0), newEvent(t, 0)
	store := &fakeStore{events: []models.OutboxEvent{first, second}}
	sender := &fakeSender{errs: []error{errors.New("unavailable"), nil}}
	r := newTestRelay(t, store, &fakeDLQ{}, sender, &fakeResolver{})

	claimed, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	assert.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, store.published)
	require.Len(t, sender.sent, 2)

	msg := sender.sent[1]
	assert.Equal(t, "gem_submitted", msg.Attributes["event_type"])
	assert.Equal(t, "gem", msg.Attributes["aggregate_type"])
	assert.Equal(t, second.AggregateID.String(), msg.Attributes["aggregate_id"])
	assert.NotEmpty(t, msg.Attributes["event_id"])
}

func TestDrainDeadLettersUnresolvableRows(t *testing.T) {
	event := newEvent(t, 0)
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	sender := &fakeSender{}
	r := newTestRelay(t, store, dlq, sender, &fakeResolver{err: registry.Permanent(errors.New("unsupported"))})

	_, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.DeadLetterPermanent, dlq.entries[0].Reason)
	assert.Equal(t, []uuid.UUID{event.ID}, store.terminal)
}

func TestDrainDeadLettersAfterMaxAttempts(t *testing.T) {
	event := newEvent(t, 2)
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	r := newTestRelay(t, store, dlq, &fakeSender{errs: []error{errors.New("deadline exceeded")}}, &fakeResolver{})

	_, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.failed)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.DeadLetterMaxAttempts, dlq.entries[0].Reason)
	assert.Equal(t, 2, dlq.entries[0].AttemptCount)
}

func TestDrainNonRetryableSendSkipsRetry(t *testing.T) {
	store := &fakeStore{events: []models.OutboxEvent{newEvent(t, 0)}}
	dlq := &fakeDLQ{}
	sender := &fakeSender{errs: []error{registry.Permanent(errors.New("no publisher"))}}
	r := newTestRelay(t, store, dlq, sender, &fakeResolver{})

	_, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Empty(t, store.failed)
	assert.Len(t, dlq.entries, 1)
}

func TestDrainReturnsBookkeepingErrors(t *testing.T) {
	store := &fakeStore{events: []models.OutboxEvent{newEvent(t, 0)}, markErr: errors.New("db gone")}
	r := newTestRelay(t, store, &fakeDLQ{}, &fakeSender{}, &fakeResolver{})

	_, err := r.Drain(context.Background())
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newTestRelay(t, &fakeStore{}, &fakeDLQ{}, &fakeSender{}, &fakeResolver{})
	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
}

func TestNewAppliesDefaults(t *testing.T) {
	r := newTestRelay(t, &fakeStore{}, &fakeDLQ{}, &fakeSender{}, &fakeResolver{})
	assert.Equal(t, defaultBatchSize, r.settings.BatchSize)
	assert.Equal(t, defaultPublishTimeout, r.settings.PublishTimeout)
	assert.GreaterOrEqual(t, r.settings.MaxBackoff, r.settings.PollInterval)

	_, err := New(Params{Logger: r.logg})
	assert.Error(t, err)
}

func newTestRelay(t *testing.T, store *fakeStore, dlq *fakeDLQ, sender *fakeSender, res *fakeResolver) *Relay {
	t.Helper()
	r, err := New(Params{
		Settings: Settings{MaxAttempts: 3},
		Logger:   logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		DB:       fakeTx{},
		Outbox:   store,
		DLQ:      dlq,
		Resolver: res,
		Sender:   sender,
		Metrics:  metrics.NewOutboxMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return r
}

func newEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"gemId":"` + uuid.NewString() + `"}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventGemSubmitted,
		AggregateType: enums.AggregateGem,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     time.Now(),
	}
}

type fakeTx struct{}

func (fakeTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type fakeStore struct {
	events    []models.OutboxEvent
	markErr   error
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeStore) ClaimBatch(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeStore) MarkPublished(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) RecordFailure(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeStore) Retire(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQ struct {
	entries []models.DeadLetter
}

func (f *fakeDLQ) DeadLetter(_ *gorm.DB, entry models.DeadLetter) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeResolver struct {
	err error
}

func (f *fakeResolver) Resolve(event models.OutboxEvent) (*registry.Route, error) {
	if f.err != nil {
		return nil, f.err
	}
	var envelope outbox.Envelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, err
	}
	return &registry.Route{Topic: "hg-domain-events", Envelope: envelope}, nil
}

type fakeSender struct {
	errs []error
	sent []*gcppubsub.Message
}

func (f *fakeSender) Send(_ context.Context, _ string, msg *gcppubsub.Message) error {
	f.sent = append(f.sent, msg)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}
