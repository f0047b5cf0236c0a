package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"fullName"`
	PhoneNumber *string    `json:"phoneNumber,omitempty"`
	AvatarURL   *string    `json:"avatarUrl,omitempty"`
	Country     *string    `json:"country,omitempty"`
	Role        enums.Role `json:"role"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email         string
	PasswordHash  *string
	FullName      string
	PhoneNumber   *string
	AvatarURL     *string
	Country       *string
	Role          enums.Role
	OAuthProvider *string
	OAuthSubject  *string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		PhoneNumber: u.PhoneNumber,
		AvatarURL:   u.AvatarURL,
		Country:     u.Country,
		Role:        u.Role,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if !role.IsValid() {
		role = enums.RoleVisitor
	}
	return &models.User{
		Email:         NormalizeEmail(c.Email),
		PasswordHash:  c.PasswordHash,
		FullName:      c.FullName,
		PhoneNumber:   c.PhoneNumber,
		AvatarURL:     c.AvatarURL,
		Country:       c.Country,
		Role:          role,
		OAuthProvider: c.OAuthProvider,
		OAuthSubject:  c.OAuthSubject,
	}
}
