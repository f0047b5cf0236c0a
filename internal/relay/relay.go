// Package relay moves committed outbox rows onto Pub/Sub. Rows are claimed
// inside a transaction with SKIP LOCKED so several relays can run side by side.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/metrics"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	defaultMaxBackoff     = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

const (
	outcomePublished  = "published"
	outcomeRetry      = "retry"
	outcomeDeadLetter = "dead_letter"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type claimStore interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Retire(tx *gorm.DB, id uuid.UUID, cause error, attempts int) error
}

type deadLetterStore interface {
	DeadLetter(tx *gorm.DB, entry models.DeadLetter) error
}

type resolver interface {
	Resolve(event models.OutboxEvent) (*registry.Route, error)
}

// Settings tunes a relay. Zero values fall back to defaults.
type Settings struct {
	BatchSize      int
	MaxAttempts    int
	PollInterval   time.Duration
	PublishTimeout time.Duration
	MaxBackoff     time.Duration
}

// SettingsFrom maps the outbox env block onto relay settings.
func SettingsFrom(cfg config.OutboxConfig) Settings {
	return Settings{
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
}

type Params struct {
	Settings Settings
	Logger   *logger.Logger
	DB       txRunner
	Outbox   claimStore
	DLQ      deadLetterStore
	Resolver resolver
	Sender   Sender
	Metrics  *metrics.OutboxMetrics
}

type Relay struct {
	settings Settings
	logg     *logger.Logger
	db       txRunner
	outbox   claimStore
	dlq      deadLetterStore
	resolver resolver
	sender   Sender
	metrics  *metrics.OutboxMetrics
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("database required")
	case p.Outbox == nil:
		return nil, errors.New("outbox repository required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository required")
	case p.Resolver == nil:
		return nil, errors.New("event registry required")
	case p.Sender == nil:
		return nil, errors.New("sender required")
	}
	s := p.Settings
	if s.BatchSize <= 0 {
		s.BatchSize = defaultBatchSize
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = defaultMaxAttempts
	}
	if s.PollInterval <= 0 {
		s.PollInterval = defaultPollInterval
	}
	if s.PublishTimeout <= 0 {
		s.PublishTimeout = defaultPublishTimeout
	}
	if s.MaxBackoff < s.PollInterval {
		s.MaxBackoff = max(defaultMaxBackoff, s.PollInterval)
	}
	return &Relay{
		settings: s,
		logg:     p.Logger,
		db:       p.DB,
		outbox:   p.Outbox,
		dlq:      p.DLQ,
		resolver: p.Resolver,
		sender:   p.Sender,
		metrics:  p.Metrics,
		now:      time.Now,
		sleep:    sleepCtx,
	}, nil
}

// Run drains the outbox until ctx is canceled. A full batch is followed
// immediately by another pass; an empty one waits one poll interval. Failed
// passes back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	wait := r.settings.PollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed, err := r.Drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay pass failed", err)
			wait = min(wait*2, r.settings.MaxBackoff)
		case claimed > 0:
			wait = r.settings.PollInterval
			continue
		default:
			wait = r.settings.PollInterval
		}
		if err := r.sleep(ctx, wait+rand.N(jitterWindow)); err != nil {
			return err
		}
	}
}

// Drain runs one claim-and-publish pass and returns how many rows it claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.outbox.ClaimBatch(tx, r.settings.BatchSize, r.settings.MaxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(events)
		for _, event := range events {
			if err := r.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	r.metrics.ObserveBatch(claimed)
	return claimed, err
}

// dispatch publishes one row and records the outcome. Only bookkeeping
// failures are returned; publish failures are absorbed into the row state.
func (r *Relay) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}

	route, err := r.resolver.Resolve(event)
	if err != nil {
		return r.deadLetter(ctx, tx, event, enums.DeadLetterPermanent, err, fields)
	}
	fields["event_id"] = route.Envelope.EventID
	fields["topic"] = route.Topic

	sendCtx, cancel := context.WithTimeout(ctx, r.settings.PublishTimeout)
	err = r.sender.Send(sendCtx, route.Topic, buildMessage(event, route))
	cancel()
	if err == nil {
		if err := r.outbox.MarkPublished(tx, event.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		r.metrics.Observe(string(event.EventType), outcomePublished)
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	if registry.IsPermanent(err) {
		return r.deadLetter(ctx, tx, event, enums.DeadLetterPermanent, err, fields)
	}
	if event.AttemptCount+1 >= r.settings.MaxAttempts {
		return r.deadLetter(ctx, tx, event, enums.DeadLetterMaxAttempts, fmt.Errorf("attempts exhausted: %w", err), fields)
	}

	fields["error"] = err.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox publish failed, will retry")
	if err := r.outbox.RecordFailure(tx, event.ID, err); err != nil {
		return fmt.Errorf("mark %s failed: %w", event.ID, err)
	}
	r.metrics.Observe(string(event.EventType), outcomeRetry)
	return nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error, fields map[string]any) error {
	fields["reason"] = string(reason)
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox event dead-lettered")

	detail := cause.Error()
	entry := models.DeadLetter{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		Reason:        reason,
		Detail:        &detail,
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.dlq.DeadLetter(tx, entry); err != nil {
		return fmt.Errorf("dead-letter %s: %w", event.ID, err)
	}
	if err := r.outbox.Retire(tx, event.ID, cause, r.settings.MaxAttempts); err != nil {
		return fmt.Errorf("retire %s: %w", event.ID, err)
	}
	r.metrics.Observe(string(event.EventType), outcomeDeadLetter)
	return nil
}

// buildMessage carries routing metadata as attributes so consumers can
// filter before decoding the body.
func buildMessage(event models.OutboxEvent, route *registry.Route) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       route.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
