package visibility

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/errors"
)

func baseGem(status enums.GemStatus, termEnd *time.Time) *models.Gem {
	return &models.Gem{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		Name:      "Kazuri Beads Factory",
		Status:    status,
		Tier:      enums.GemTierStandard,
		TermEndAt: termEnd,
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestEnsureGemVisible_HiddenStatusesReturnNotFound(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	future := ptrTime(now.Add(24 * time.Hour))
	viewers := []Viewer{
		{},
		{ID: uuid.New(), Role: enums.RoleVisitor},
		{ID: uuid.New(), Role: enums.RoleOwner},
	}

	for _, status := range []enums.GemStatus{enums.GemStatusPending, enums.GemStatusRejected, enums.GemStatusExpired} {
		for _, viewer := range viewers {
			err := EnsureGemVisible(GemVisibilityInput{Gem: baseGem(status, future), Viewer: viewer, Now: now})
			if err == nil {
				t.Fatalf("expected %s gem to be hidden from %+v", status, viewer)
			}
			if typed := errors.As(err); typed == nil || typed.Code() != errors.CodeNotFound {
				t.Fatalf("expected not found for %s gem, got %v", status, err)
			}
		}
	}
}

func TestEnsureGemVisible_OwnerAndAdminSeeHiddenGems(t *testing.T) {
	now := time.Now()
	gem := baseGem(enums.GemStatusPending, nil)

	if err := EnsureGemVisible(GemVisibilityInput{Gem: gem, Viewer: Viewer{ID: gem.OwnerID, Role: enums.RoleOwner}, Now: now}); err != nil {
		t.Fatalf("owner should see pending gem: %v", err)
	}
	if err := EnsureGemVisible(GemVisibilityInput{Gem: gem, Viewer: Viewer{ID: uuid.New(), Role: enums.RoleAdmin}, Now: now}); err != nil {
		t.Fatalf("admin should see pending gem: %v", err)
	}
}

func TestIsPublic_TermAndFreeTrial(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	elapsed := baseGem(enums.GemStatusApproved, ptrTime(now.Add(-time.Hour)))
	if IsPublic(elapsed, now, time.Time{}) {
		t.Fatal("approved gem with elapsed term should be hidden after the trial")
	}
	if !IsPublic(elapsed, now, now.Add(time.Hour)) {
		t.Fatal("approved gem should be visible during the free trial")
	}

	noTerm := baseGem(enums.GemStatusApproved, nil)
	if IsPublic(noTerm, now, time.Time{}) {
		t.Fatal("approved gem without a term should be hidden outside the trial")
	}

	active := baseGem(enums.GemStatusApproved, ptrTime(now.Add(time.Hour)))
	if !IsPublic(active, now, time.Time{}) {
		t.Fatal("approved gem with an active term should be visible")
	}
}
