package media

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
)

// Repository persists gem media rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a media repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, media *models.GemMedia) error {
	if media.ID == uuid.Nil {
		media.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(media).Error
}

// Find retrieves a media row scoped to its gem.
func (r *Repository) Find(ctx context.Context, gemID, id uuid.UUID) (*models.GemMedia, error) {
	var m models.GemMedia
	if err := r.db.WithContext(ctx).First(&m, "id = ? AND gem_id = ?", id, gemID).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByGem returns media ordered by sequence.
func (r *Repository) ListByGem(ctx context.Context, gemID uuid.UUID) ([]models.GemMedia, error) {
	var rows []models.GemMedia
	err := r.db.WithContext(ctx).
		Where("gem_id = ?", gemID).
		Order("sequence ASC").
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Count(ctx context.Context, gemID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GemMedia{}).Where("gem_id = ?", gemID).Count(&count).Error
	return count, err
}

// NextSequence returns one past the highest sequence used by the gem.
func (r *Repository) NextSequence(ctx context.Context, gemID uuid.UUID) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&models.GemMedia{}).
		Select("COALESCE(MAX(sequence), -1)").
		Where("gem_id = ?", gemID).
		Row().
		Scan(&max)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// SetCover marks id as the cover and clears the flag on every sibling.
func (r *Repository) SetCover(ctx context.Context, gemID, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.GemMedia{}).
		Where("gem_id = ? AND id <> ? AND is_cover = ?", gemID, id, true).
		UpdateColumn("is_cover", false).Error; err != nil {
		return err
	}
	return db.Model(&models.GemMedia{}).
		Where("gem_id = ? AND id = ?", gemID, id).
		UpdateColumn("is_cover", true).Error
}

func (r *Repository) UpdateSequence(ctx context.Context, id uuid.UUID, sequence int) error {
	return r.db.WithContext(ctx).
		Model(&models.GemMedia{}).
		Where("id = ?", id).
		UpdateColumn("sequence", sequence).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.GemMedia{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
