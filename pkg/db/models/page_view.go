package models

import (
	"time"

	"github.com/google/uuid"
)

// PageView records one tracked page hit for the traffic dashboard.
type PageView struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Path      string     `gorm:"column:path;not null"`
	GemID     *uuid.UUID `gorm:"column:gem_id;type:uuid"`
	SessionID *string    `gorm:"column:session_id"`
	Country   *string    `gorm:"column:country"`
	Referrer  *string    `gorm:"column:referrer"`
	UserAgent *string    `gorm:"column:user_agent"`
	ViewedAt  time.Time  `gorm:"column:viewed_at;not null"`
}
