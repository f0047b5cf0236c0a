package traffic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
)

const topPathLimit = 10

// DayCount is the number of views on one UTC calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Views int64  `json:"views"`
}

// PathCount is the number of views of one path.
type PathCount struct {
	Path  string `json:"path"`
	Views int64  `json:"views"`
}

// Summary aggregates page views over a window.
type Summary struct {
	TotalViews     int64       `json:"totalViews"`
	UniqueSessions int64       `json:"uniqueSessions"`
	ViewsPerDay    []DayCount  `json:"viewsPerDay"`
	TopPaths       []PathCount `json:"topPaths"`
}

// Store is the persistence surface the service depends on.
type Store interface {
	Insert(ctx context.Context, view *models.PageView) error
	Summarize(ctx context.Context, since time.Time, gemID *uuid.UUID) (*Summary, error)
}

// Repository persists page views.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, view *models.PageView) error {
	if view.ID == uuid.Nil {
		view.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(view).Error
}

func (r *Repository) scoped(ctx context.Context, since time.Time, gemID *uuid.UUID) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.PageView{}).Where("viewed_at >= ?", since)
	if gemID != nil {
		q = q.Where("gem_id = ?", *gemID)
	}
	return q
}

// Summarize computes totals, unique sessions, per-day counts and the top
// paths for views at or after since.
func (r *Repository) Summarize(ctx context.Context, since time.Time, gemID *uuid.UUID) (*Summary, error) {
	out := &Summary{ViewsPerDay: []DayCount{}, TopPaths: []PathCount{}}

	if err := r.scoped(ctx, since, gemID).Count(&out.TotalViews).Error; err != nil {
		return nil, err
	}
	if err := r.scoped(ctx, since, gemID).
		Where("session_id IS NOT NULL AND session_id <> ''").
		Distinct("session_id").
		Count(&out.UniqueSessions).Error; err != nil {
		return nil, err
	}

	day := r.dayExpr()
	if err := r.scoped(ctx, since, gemID).
		Select(day + " AS date, COUNT(*) AS views").
		Group(day).
		Order("date ASC").
		Scan(&out.ViewsPerDay).Error; err != nil {
		return nil, err
	}
	if err := r.scoped(ctx, since, gemID).
		Select("path, COUNT(*) AS views").
		Group("path").
		Order("views DESC").
		Order("path ASC").
		Limit(topPathLimit).
		Scan(&out.TopPaths).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) dayExpr() string {
	if r.db.Dialector.Name() == "postgres" {
		return "to_char(viewed_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}
	return "strftime('%Y-%m-%d', viewed_at)"
}
