package visibility

import (
	"time"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
)

// Viewer identifies who is asking to see a gem. A zero ID means anonymous.
type Viewer struct {
	ID   uuid.UUID
	Role enums.Role
}

// GemVisibilityInput drives the shared visibility checks for listing reads.
type GemVisibilityInput struct {
	Gem            *models.Gem
	Viewer         Viewer
	Now            time.Time
	FreeTrialUntil time.Time
}

// IsPublic reports whether anyone may see the gem: approved, and inside a paid
// term once the free-trial window has closed.
func IsPublic(gem *models.Gem, now, freeTrialUntil time.Time) bool {
	if gem == nil || gem.Status != enums.GemStatusApproved {
		return false
	}
	if !freeTrialUntil.IsZero() && now.Before(freeTrialUntil) {
		return true
	}
	return gem.TermEndAt != nil && gem.TermEndAt.After(now)
}

// CanManage reports whether the viewer owns the gem or is an admin.
func CanManage(gem *models.Gem, viewer Viewer) bool {
	if gem == nil {
		return false
	}
	if viewer.Role == enums.RoleAdmin {
		return true
	}
	return viewer.ID != uuid.Nil && viewer.ID == gem.OwnerID
}

// EnsureGemVisible returns NOT_FOUND for hidden gems so their existence never
// leaks to callers that cannot manage them.
func EnsureGemVisible(input GemVisibilityInput) error {
	if input.Gem == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
	}
	if CanManage(input.Gem, input.Viewer) {
		return nil
	}
	if !IsPublic(input.Gem, input.Now, input.FreeTrialUntil) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
	}
	return nil
}
