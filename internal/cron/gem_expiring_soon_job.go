package cron

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
)

const defaultExpiringSoonDays = 7

type onceEmitter interface {
	EmitOnceSince(ctx context.Context, tx *gorm.DB, since time.Time, event outbox.DomainEvent) (bool, error)
}

type GemExpiringSoonJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Gems      *gems.Repository
	Outbox    onceEmitter
	Days      int
	BatchSize int
}

// NewGemExpiringSoonJob sends one warning per paid term when the term ends
// within the configured number of days.
func NewGemExpiringSoonJob(params GemExpiringSoonJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Gems == nil {
		return nil, fmt.Errorf("gem repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	days := params.Days
	if days <= 0 {
		days = defaultExpiringSoonDays
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultGemBatch
	}
	return &gemExpiringSoonJob{
		logg:   params.Logger,
		db:     params.DB,
		gems:   params.Gems,
		outbox: params.Outbox,
		window: time.Duration(days) * 24 * time.Hour,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type gemExpiringSoonJob struct {
	logg   *logger.Logger
	db     txRunner
	gems   *gems.Repository
	outbox onceEmitter
	window time.Duration
	batch  int
	now    func() time.Time
}

func (j *gemExpiringSoonJob) Name() string { return "gem_expiring_soon" }

func (j *gemExpiringSoonJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	due, err := j.gems.ListExpiringSoon(ctx, now, now.Add(j.window), j.batch)
	if err != nil {
		return fmt.Errorf("list expiring gems: %w", err)
	}

	var (
		errs     error
		notified int
	)
	for i := range due {
		gem := due[i]
		// The marker is reset when a new term is activated; the outbox check
		// covers a marker lost to a restore.
		since := now.Add(-j.window)
		if gem.TermStartAt != nil {
			since = *gem.TermStartAt
		}
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			marked, err := j.gems.WithTx(tx).MarkExpiryNotified(ctx, gem.ID, now)
			if err != nil || !marked {
				return err
			}
			sent, err := j.outbox.EmitOnceSince(ctx, tx, since, outbox.DomainEvent{
				EventType:     enums.EventGemExpiringSoon,
				AggregateType: enums.AggregateGem,
				AggregateID:   gem.ID,
				Data: payloads.GemExpiringSoonEvent{
					GemID:         gem.ID,
					OwnerID:       gem.OwnerID,
					Name:          gem.Name,
					TermEndAt:     *gem.TermEndAt,
					DaysRemaining: daysUntil(now, *gem.TermEndAt),
				},
			})
			if sent {
				notified++
			}
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("warn gem %s: %w", gem.ID, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(due),
		"notified":   notified,
	}), "gem expiring soon complete")
	return errs
}

func daysUntil(now, end time.Time) int {
	days := int(math.Ceil(end.Sub(now).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}
