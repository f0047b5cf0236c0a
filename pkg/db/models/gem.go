package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

// Gem is a user-submitted point-of-interest listing.
type Gem struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID         uuid.UUID         `gorm:"column:owner_id;type:uuid;not null"`
	Name            string            `gorm:"column:name;not null"`
	Slug            string            `gorm:"column:slug;not null;uniqueIndex:ux_gems_slug"`
	Description     string            `gorm:"column:description;not null"`
	Category        enums.GemCategory `gorm:"column:category;type:gem_category;not null"`
	Country         string            `gorm:"column:country;not null"`
	City            string            `gorm:"column:city;not null"`
	Address         *string           `gorm:"column:address"`
	Latitude        *float64          `gorm:"column:latitude"`
	Longitude       *float64          `gorm:"column:longitude"`
	Phone           *string           `gorm:"column:phone"`
	Email           *string           `gorm:"column:email"`
	Website         *string           `gorm:"column:website"`
	Instagram       *string           `gorm:"column:instagram"`
	Tags            pq.StringArray    `gorm:"column:tags;type:text[];not null;default:'{}'"`
	Status          enums.GemStatus   `gorm:"column:status;type:gem_status;not null;default:pending"`
	Tier            enums.GemTier     `gorm:"column:tier;type:gem_tier;not null;default:standard"`
	RejectionReason *string           `gorm:"column:rejection_reason"`
	ViewCount       int64             `gorm:"column:view_count;not null;default:0"`
	RatingAvg       float64           `gorm:"column:rating_avg;not null;default:0"`
	RatingCount     int64             `gorm:"column:rating_count;not null;default:0"`
	TermStartAt     *time.Time        `gorm:"column:term_start_at"`
	TermEndAt       *time.Time        `gorm:"column:term_end_at"`
	ExpiryNotified  *time.Time        `gorm:"column:expiry_notified_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Media []GemMedia `gorm:"foreignKey:GemID"`
}
