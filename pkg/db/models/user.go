package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

// User is the profile row; Role is the only authorization attribute.
type User struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email         string     `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash  *string    `gorm:"column:password_hash"`
	FullName      string     `gorm:"column:full_name;not null"`
	PhoneNumber   *string    `gorm:"column:phone_number"`
	AvatarURL     *string    `gorm:"column:avatar_url"`
	Country       *string    `gorm:"column:country"`
	Role          enums.Role `gorm:"column:role;type:user_role;not null;default:visitor"`
	OAuthProvider *string    `gorm:"column:oauth_provider"`
	OAuthSubject  *string    `gorm:"column:oauth_subject"`
	LastLoginAt   *time.Time `gorm:"column:last_login_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
