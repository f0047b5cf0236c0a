package models

import (
	"time"

	"github.com/google/uuid"
)

// Favorite links a user to a gem they saved.
type Favorite struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_favorites_user_gem"`
	GemID     uuid.UUID `gorm:"column:gem_id;type:uuid;not null;uniqueIndex:ux_favorites_user_gem"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
