package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
)

// Repository persists payments.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, "checkout_request_id = ?", checkoutRequestID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Outcome is the terminal state written by Finalize.
type Outcome struct {
	Status     enums.PaymentStatus
	Receipt    *string
	ResultCode *int
	ResultDesc *string
	At         time.Time
}

// Finalize moves a pending payment to its terminal status. It returns false
// when the row was no longer pending, meaning another writer already won.
func (r *Repository) Finalize(ctx context.Context, id uuid.UUID, outcome Outcome) (bool, error) {
	updates := map[string]any{
		"status":      outcome.Status,
		"result_code": outcome.ResultCode,
		"result_desc": outcome.ResultDesc,
		"updated_at":  outcome.At,
	}
	if outcome.Status == enums.PaymentStatusCompleted {
		updates["mpesa_receipt"] = outcome.Receipt
		updates["completed_at"] = outcome.At
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListByUser returns the caller's payments newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, page pagination.Page) ([]models.Payment, int64, error) {
	return r.List(ctx, ListFilters{UserID: &userID}, page)
}

func (r *Repository) List(ctx context.Context, filters ListFilters, page pagination.Page) ([]models.Payment, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Payment{})
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.Purpose != nil {
		q = q.Where("purpose = ?", *filters.Purpose)
	}
	if filters.Tier != nil {
		q = q.Where("tier = ?", *filters.Tier)
	}
	if filters.UserID != nil {
		q = q.Where("user_id = ?", *filters.UserID)
	}
	if filters.GemID != nil {
		q = q.Where("gem_id = ?", *filters.GemID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Payment
	err := q.Order("created_at DESC").
		Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListPendingBefore returns pending payments created at or before cutoff, oldest first.
func (r *Repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", enums.PaymentStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

type statusCount struct {
	Status enums.PaymentStatus
	Count  int64
}

type revenueRow struct {
	Bucket string
	Total  decimal.Decimal
}

// Stats aggregates counts and completed revenue.
func (r *Repository) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	db := r.db.WithContext(ctx)
	stats := &Stats{
		CountByStatus:    make(map[enums.PaymentStatus]int64),
		CompletedRevenue: decimal.Zero,
		RevenueByTier:    make(map[enums.GemTier]decimal.Decimal),
		RevenueByPurpose: make(map[enums.PaymentPurpose]decimal.Decimal),
		Currency:         enums.CurrencyKES,
	}

	var counts []statusCount
	if err := db.Model(&models.Payment{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.CountByStatus[c.Status] = c.Count
	}

	var byTier []revenueRow
	if err := db.Model(&models.Payment{}).
		Select("tier AS bucket, COALESCE(SUM(amount), 0) AS total").
		Where("status = ?", enums.PaymentStatusCompleted).
		Group("tier").
		Scan(&byTier).Error; err != nil {
		return nil, err
	}
	for _, row := range byTier {
		stats.RevenueByTier[enums.GemTier(row.Bucket)] = row.Total
		stats.CompletedRevenue = stats.CompletedRevenue.Add(row.Total)
	}

	var byPurpose []revenueRow
	if err := db.Model(&models.Payment{}).
		Select("purpose AS bucket, COALESCE(SUM(amount), 0) AS total").
		Where("status = ?", enums.PaymentStatusCompleted).
		Group("purpose").
		Scan(&byPurpose).Error; err != nil {
		return nil, err
	}
	for _, row := range byPurpose {
		stats.RevenueByPurpose[enums.PaymentPurpose(row.Bucket)] = row.Total
	}

	if err := db.Model(&models.Payment{}).
		Where("created_at >= ?", since).
		Count(&stats.CountLast30Days).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
