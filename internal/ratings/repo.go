package ratings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
)

// Repository persists ratings.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, rating *models.Rating) error {
	if rating.ID == uuid.Nil {
		rating.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(rating).Error
}

// FindByGemAndUser returns gorm.ErrRecordNotFound when the user has not rated the gem.
func (r *Repository) FindByGemAndUser(ctx context.Context, gemID, userID uuid.UUID) (*models.Rating, error) {
	var rating models.Rating
	err := r.db.WithContext(ctx).
		Where("gem_id = ? AND user_id = ?", gemID, userID).
		First(&rating).Error
	if err != nil {
		return nil, err
	}
	return &rating, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Rating, error) {
	var rating models.Rating
	if err := r.db.WithContext(ctx).First(&rating, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rating, nil
}

func (r *Repository) Update(ctx context.Context, rating *models.Rating) error {
	return r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Where("id = ?", rating.ID).
		Updates(map[string]any{
			"score":      rating.Score,
			"comment":    rating.Comment,
			"updated_at": rating.UpdatedAt,
		}).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Rating{}, "id = ?", id).Error
}

// AuthoredRating is a rating joined with its author's display name.
type AuthoredRating struct {
	models.Rating
	AuthorName   string
	AuthorAvatar *string
}

// ListByGem returns the newest ratings first with author names.
func (r *Repository) ListByGem(ctx context.Context, gemID uuid.UUID, page pagination.Page) ([]AuthoredRating, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Where("gem_id = ?", gemID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []AuthoredRating
	err := r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Where("ratings.gem_id = ?", gemID).
		Select("ratings.*, users.full_name AS author_name, users.avatar_url AS author_avatar").
		Joins("JOIN users ON users.id = ratings.user_id").
		Order("ratings.created_at DESC").
		Order("ratings.id DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
