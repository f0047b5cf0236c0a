package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

type profileFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ViewerResolver turns an authenticated user id into a Viewer whose role comes
// from the profile row, never from token claims.
type ViewerResolver struct {
	profiles profileFinder
}

func NewViewerResolver(profiles profileFinder) *ViewerResolver {
	return &ViewerResolver{profiles: profiles}
}

// Resolve returns the anonymous viewer for uuid.Nil. A token whose profile has
// been deleted is treated as unauthenticated.
func (r *ViewerResolver) Resolve(ctx context.Context, userID uuid.UUID) (visibility.Viewer, error) {
	if userID == uuid.Nil {
		return visibility.Viewer{}, nil
	}
	user, err := r.profiles.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return visibility.Viewer{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "profile not found")
		}
		return visibility.Viewer{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}
	return visibility.Viewer{ID: user.ID, Role: user.Role}, nil
}
