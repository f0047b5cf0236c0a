package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

const errorTextLimit = 1024

// Store persists outbox rows and dead letters. Methods taking a *gorm.DB run
// inside the caller's transaction.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

func (s *Store) Insert(tx *gorm.DB, row models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&row).Error
}

// QueuedSince reports whether a matching event was queued at or after since.
func (s *Store) QueuedSince(tx *gorm.DB, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID, since time.Time) (bool, error) {
	if tx == nil {
		return false, errNoTx
	}
	var hits int64
	err := tx.Model(&models.OutboxEvent{}).
		Where(&models.OutboxEvent{EventType: eventType, AggregateType: aggregateType, AggregateID: aggregateID}).
		Where("created_at >= ?", since).
		Limit(1).
		Count(&hits).Error
	return hits > 0, err
}

// ClaimBatch row-locks up to limit unpublished events in insertion order,
// skipping rows another relay already holds and rows that used up their
// attempts.
func (s *Store) ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	query := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := query.
		Order("created_at, id").
		Limit(limit).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
		Find(&rows).Error
	return rows, err
}

func (s *Store) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return s.update(tx, id, map[string]any{"published_at": s.clock().UTC(), "last_error": nil})
}

// RecordFailure keeps the row pending and counts the attempt.
func (s *Store) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return s.update(tx, id, map[string]any{
		"last_error":    clip(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// Retire pins attempt_count at attempts so ClaimBatch never returns the row
// again.
func (s *Store) Retire(tx *gorm.DB, id uuid.UUID, cause error, attempts int) error {
	return s.update(tx, id, map[string]any{"last_error": clip(cause), "attempt_count": attempts})
}

// DeadLetter stores entry. A second entry for the same event is dropped.
func (s *Store) DeadLetter(tx *gorm.DB, entry models.DeadLetter) error {
	if tx == nil {
		return errNoTx
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Detail != nil && len(*entry.Detail) > errorTextLimit {
		short := (*entry.Detail)[:errorTextLimit]
		entry.Detail = &short
	}
	return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&entry).Error
}

// PrunePublished deletes events published before cutoff.
func (s *Store) PrunePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// PruneDeadLetters deletes dead letters recorded before cutoff.
func (s *Store) PruneDeadLetters(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&models.DeadLetter{})
	return res.RowsAffected, res.Error
}

func (s *Store) update(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

func clip(err error) *string {
	if err == nil {
		return nil
	}
	text := err.Error()
	if len(text) > errorTextLimit {
		text = text[:errorTextLimit]
	}
	return &text
}
