package favorites

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
)

// Repository encapsulates favorites persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a favorites repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Find(ctx context.Context, userID, gemID uuid.UUID) (*models.Favorite, error) {
	var fav models.Favorite
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND gem_id = ?", userID, gemID).
		First(&fav).Error
	if err != nil {
		return nil, err
	}
	return &fav, nil
}

func (r *Repository) Create(ctx context.Context, fav *models.Favorite) error {
	if fav.ID == uuid.Nil {
		fav.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(fav).Error
}

// Delete removes the user-gem link if it exists.
func (r *Repository) Delete(ctx context.Context, userID, gemID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND gem_id = ?", userID, gemID).
		Delete(&models.Favorite{})
	return res.RowsAffected > 0, res.Error
}

// ListByUser returns the user's favorites newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, page pagination.Page) ([]models.Favorite, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Favorite{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Favorite
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
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
