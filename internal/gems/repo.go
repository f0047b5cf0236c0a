package gems

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/geo"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
)

const featuredFirst = "CASE WHEN tier = 'featured' THEN 0 ELSE 1 END"

// Repository persists gems and their media.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Visibility is the public filter applied to list queries. When Public is
// false no visibility filter is added.
type Visibility struct {
	Public      bool
	Now         time.Time
	InFreeTrial bool
}

func (v Visibility) apply(q *gorm.DB) *gorm.DB {
	if !v.Public {
		return q
	}
	q = q.Where("status = ?", enums.GemStatusApproved)
	if !v.InFreeTrial {
		q = q.Where("term_end_at IS NOT NULL AND term_end_at > ?", v.Now)
	}
	return q
}

func (r *Repository) Create(ctx context.Context, gem *models.Gem) error {
	if gem.ID == uuid.Nil {
		gem.ID = uuid.New()
	}
	if gem.Tags == nil {
		gem.Tags = []string{}
	}
	return r.db.WithContext(ctx).Create(gem).Error
}

// FindByID loads the gem with media ordered by sequence.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Gem, error) {
	var gem models.Gem
	if err := r.withMedia(ctx).First(&gem, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &gem, nil
}

func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Gem, error) {
	var gem models.Gem
	if err := r.withMedia(ctx).First(&gem, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &gem, nil
}

// FindForUpdate loads the gem without media and locks the row. SQLite ignores the lock.
func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Gem, error) {
	var gem models.Gem
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&gem, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &gem, nil
}

func (r *Repository) withMedia(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Media", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("sequence ASC").Order("created_at ASC")
	})
}

func (r *Repository) SlugExists(ctx context.Context, slug string, exclude uuid.UUID) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&models.Gem{}).Where("slug = ?", slug)
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save writes every column of gem.
func (r *Repository) Save(ctx context.Context, gem *models.Gem) error {
	return r.db.WithContext(ctx).Omit("Media").Save(gem).Error
}

// Delete removes the gem; media, ratings and favorites cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Gem{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteMedia removes media rows explicitly; used where FK cascades are not enforced.
func (r *Repository) DeleteMedia(ctx context.Context, gemID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("gem_id = ?", gemID).Delete(&models.GemMedia{}).Error
}

func (r *Repository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Gem{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

// List runs the filtered search; featured listings sort before standard ones.
func (r *Repository) List(ctx context.Context, filters ListFilters, vis Visibility, page pagination.Page) ([]models.Gem, int64, error) {
	q := vis.apply(r.db.WithContext(ctx).Model(&models.Gem{}))
	if filters.OwnerID != nil {
		q = q.Where("owner_id = ?", *filters.OwnerID)
	}
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.Category != nil {
		q = q.Where("category = ?", *filters.Category)
	}
	if c := strings.TrimSpace(filters.Country); c != "" {
		q = q.Where("LOWER(country) = ?", strings.ToLower(c))
	}
	if c := strings.TrimSpace(filters.City); c != "" {
		q = q.Where("LOWER(city) = ?", strings.ToLower(c))
	}
	if filters.MinRating != nil {
		q = q.Where("rating_avg >= ?", *filters.MinRating)
	}
	if filters.Tier != nil {
		q = q.Where("tier = ?", *filters.Tier)
	}
	if term := strings.TrimSpace(filters.Query); term != "" {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		q = q.Where("(LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\' OR LOWER(city) LIKE ? ESCAPE '\\')", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Gem
	err := q.Preload("Media", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("sequence ASC")
	}).
		Order(featuredFirst).
		Order("created_at DESC").
		Order("id DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// NearbyRow is one hit from the gems_nearby SQL function.
type NearbyRow struct {
	GemID      uuid.UUID `gorm:"column:gem_id"`
	DistanceKm float64   `gorm:"column:distance_km"`
}

// NearbyFunction calls the database-side radius search.
func (r *Repository) NearbyFunction(ctx context.Context, center geo.Point, radiusKm float64, limit int) ([]NearbyRow, error) {
	var rows []NearbyRow
	err := r.db.WithContext(ctx).
		Raw("SELECT gem_id, distance_km FROM gems_nearby(?, ?, ?, ?)", center.Lat, center.Lng, radiusKm, limit).
		Scan(&rows).Error
	return rows, err
}

// FindByIDs loads visible gems for the given ids, with media.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID, vis Visibility) ([]models.Gem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Gem
	err := vis.apply(r.withMedia(ctx)).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

// ListInBox returns visible gems with coordinates inside box.
func (r *Repository) ListInBox(ctx context.Context, box geo.Box, vis Visibility) ([]models.Gem, error) {
	var rows []models.Gem
	err := vis.apply(r.withMedia(ctx)).
		Where("latitude IS NOT NULL AND longitude IS NOT NULL").
		Where("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat).
		Where("longitude BETWEEN ? AND ?", box.MinLng, box.MaxLng).
		Find(&rows).Error
	return rows, err
}

// ActivateTerm copies a paid term onto the gem. Featured purchases and
// upgrades set the tier, expired listings return to approved, and the
// expiring-soon marker is cleared for the new term.
func (r *Repository) ActivateTerm(ctx context.Context, gemID uuid.UUID, start, end time.Time, tier *enums.GemTier) error {
	updates := map[string]any{
		"term_start_at":      start,
		"term_end_at":        end,
		"expiry_notified_at": nil,
		"updated_at":         time.Now().UTC(),
		"status": gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
			enums.GemStatusExpired, enums.GemStatusApproved),
	}
	if tier != nil {
		updates["tier"] = *tier
	}
	res := r.db.WithContext(ctx).Model(&models.Gem{}).Where("id = ?", gemID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListTermElapsed returns approved gems whose paid term ended before now.
func (r *Repository) ListTermElapsed(ctx context.Context, now time.Time, limit int) ([]models.Gem, error) {
	var rows []models.Gem
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.GemStatusApproved).
		Where("term_end_at IS NOT NULL AND term_end_at <= ?", now).
		Order("term_end_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkExpired flips an approved gem to expired; false when another writer got there first.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Gem{}).
		Where("id = ? AND status = ? AND term_end_at <= ?", id, enums.GemStatusApproved, now).
		Updates(map[string]any{"status": enums.GemStatusExpired, "updated_at": now})
	return res.RowsAffected > 0, res.Error
}

// ListExpiringSoon returns approved gems whose term ends within (now, until]
// and whose owners have not been told about this term yet.
func (r *Repository) ListExpiringSoon(ctx context.Context, now, until time.Time, limit int) ([]models.Gem, error) {
	var rows []models.Gem
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.GemStatusApproved).
		Where("term_end_at > ? AND term_end_at <= ?", now, until).
		Where("expiry_notified_at IS NULL").
		Order("term_end_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkExpiryNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Gem{}).
		Where("id = ? AND expiry_notified_at IS NULL", id).
		UpdateColumn("expiry_notified_at", at)
	return res.RowsAffected > 0, res.Error
}

// RefreshRatingAggregate recomputes rating_avg and rating_count from ratings.
func (r *Repository) RefreshRatingAggregate(ctx context.Context, gemID uuid.UUID) error {
	var agg struct {
		Count int64
		Avg   *float64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Select("COUNT(*) AS count, AVG(score) AS avg").
		Where("gem_id = ?", gemID).
		Scan(&agg).Error; err != nil {
		return err
	}
	avg := 0.0
	if agg.Avg != nil {
		avg = roundTo(*agg.Avg, 2)
	}
	return r.db.WithContext(ctx).
		Model(&models.Gem{}).
		Where("id = ?", gemID).
		UpdateColumns(map[string]any{"rating_avg": avg, "rating_count": agg.Count}).Error
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
