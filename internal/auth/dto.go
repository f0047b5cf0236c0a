package auth

import (
	"github.com/hiddengems/hiddengems-backend/internal/users"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the self-service sign-up payload. Role may be visitor or
// owner; admin is only granted through seed-admin or an existing admin.
type RegisterRequest struct {
	Email       string     `json:"email" validate:"required,email"`
	Password    string     `json:"password" validate:"required"`
	FullName    string     `json:"fullName" validate:"required"`
	PhoneNumber *string    `json:"phoneNumber,omitempty"`
	Country     *string    `json:"country,omitempty"`
	Role        enums.Role `json:"role,omitempty"`
}

// RefreshRequest carries the refresh token; the expired access token comes from the Authorization header.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// LoginResponse contains the tokens and profile produced by a successful login.
type LoginResponse struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	User         *users.UserDTO `json:"user"`
}

// TokenPair is returned by refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// OAuthProfile is the identity returned by an OAuth provider's userinfo endpoint.
type OAuthProfile struct {
	Provider  string
	Subject   string
	Email     string
	FullName  string
	AvatarURL string
}
