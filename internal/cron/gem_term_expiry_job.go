package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
)

const defaultGemBatch = 200

type GemTermExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Gems      *gems.Repository
	Outbox    outbox.Emitter
	BatchSize int
}

// NewGemTermExpiryJob hides approved listings whose paid term has ended and
// tells their owners.
func NewGemTermExpiryJob(params GemTermExpiryJobParams) (Job, error) {
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
		return nil, fmt.Errorf("outbox emitter required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultGemBatch
	}
	return &gemTermExpiryJob{
		logg:   params.Logger,
		db:     params.DB,
		gems:   params.Gems,
		outbox: params.Outbox,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type gemTermExpiryJob struct {
	logg   *logger.Logger
	db     txRunner
	gems   *gems.Repository
	outbox outbox.Emitter
	batch  int
	now    func() time.Time
}

func (j *gemTermExpiryJob) Name() string { return "gem_term_expiry" }

func (j *gemTermExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	due, err := j.gems.ListTermElapsed(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("list elapsed terms: %w", err)
	}

	var (
		errs    error
		expired int
	)
	for i := range due {
		gem := due[i]
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := j.gems.WithTx(tx).MarkExpired(ctx, gem.ID, now)
			if err != nil || !ok {
				return err
			}
			expired++
			return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventGemExpired,
				AggregateType: enums.AggregateGem,
				AggregateID:   gem.ID,
				Data: payloads.GemExpiredEvent{
					GemID:     gem.ID,
					OwnerID:   gem.OwnerID,
					Name:      gem.Name,
					TermEndAt: *gem.TermEndAt,
					ExpiredAt: now,
				},
			})
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire gem %s: %w", gem.ID, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(due),
		"expired":    expired,
	}), "gem term expiry complete")
	return errs
}
