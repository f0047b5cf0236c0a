package admin

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/auth"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

// Identity is the verified admin behind a request.
type Identity struct {
	ID    uuid.UUID
	Email string
}

// Viewer returns the identity as an admin viewer.
func (i Identity) Viewer() visibility.Viewer {
	return visibility.Viewer{ID: i.ID, Role: enums.RoleAdmin}
}

type profileFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Gate checks admin access against the stored profile on every call.
type Gate struct {
	profiles profileFinder
}

func NewGate(profiles profileFinder) *Gate {
	return &Gate{profiles: profiles}
}

// RequireAdmin returns 401 when the request carries no authenticated user and
// 403 when the profile is missing or not an admin. Token claims and request
// bodies never influence the decision.
func (g *Gate) RequireAdmin(ctx context.Context) (Identity, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	user, err := g.profiles.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
		}
		return Identity{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}
	if user.Role != enums.RoleAdmin {
		return Identity{}, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	return Identity{ID: user.ID, Email: user.Email}, nil
}
