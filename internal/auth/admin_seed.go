package auth

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/internal/users"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/security"
)

// SeedAdminRequest names the profile to create or promote.
type SeedAdminRequest struct {
	Email    string
	FullName string
	// Password is optional when promoting an existing profile.
	Password string
}

// SeedAdminResult reports what seed-admin did.
type SeedAdminResult struct {
	User        *users.UserDTO
	Created     bool
	Promoted    bool
	PasswordSet bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AdminSeeder bootstraps the first administrator from the command line.
type AdminSeeder struct {
	db          txRunner
	passwordCfg config.PasswordConfig
}

// NewAdminSeeder builds a seeder backed by the database client.
func NewAdminSeeder(client *db.Client, passwordCfg config.PasswordConfig) (*AdminSeeder, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	return &AdminSeeder{db: client, passwordCfg: passwordCfg}, nil
}

// Seed creates the profile as admin, or promotes an existing profile to admin.
func (s *AdminSeeder) Seed(ctx context.Context, req SeedAdminRequest) (*SeedAdminResult, error) {
	email := users.NormalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	var hash *string
	if req.Password != "" {
		if msg := security.CheckPasswordPolicy(req.Password); msg != "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, msg)
		}
		encoded, err := security.HashPassword(req.Password, s.passwordCfg)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
		}
		hash = &encoded
	}

	result := &SeedAdminResult{}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := users.NewRepository(tx)
		existing, err := repo.FindByEmail(ctx, email)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
		}

		if existing != nil {
			if existing.Role != enums.RoleAdmin {
				if err := repo.UpdateRole(ctx, existing.ID, enums.RoleAdmin); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "promote user")
				}
				existing.Role = enums.RoleAdmin
				result.Promoted = true
			}
			if hash != nil {
				if err := repo.SetPassword(ctx, existing.ID, *hash); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set password")
				}
				result.PasswordSet = true
			}
			result.User = users.FromModel(existing)
			return nil
		}

		if hash == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "password is required to create a new admin")
		}
		fullName := strings.TrimSpace(req.FullName)
		if fullName == "" {
			fullName = "Administrator"
		}
		created, err := repo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: hash,
			FullName:     fullName,
			Role:         enums.RoleAdmin,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create admin")
		}
		result.User = users.FromModel(created)
		result.Created = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
