package favorites

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/pkg/db"
	"github.com/hiddengems/hiddengems-backend/pkg/db/dbtest"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

type recordingEmitter struct {
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

var testNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *service
	client  *db.Client
	emitter *recordingEmitter
	ownerID uuid.UUID
	visitor visibility.Viewer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	owner := createUser(t, client, "owner@example.com", enums.RoleOwner)
	visitor := createUser(t, client, "wanjiru@example.com", enums.RoleVisitor)

	emitter := &recordingEmitter{}
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(client.DB()),
		GemRepo: gems.NewRepository(client.DB()),
		DB:      client,
		Outbox:  emitter,
	})
	require.NoError(t, err)
	impl := svc.(*service)
	impl.now = func() time.Time { return testNow }
	return &fixture{
		svc:     impl,
		client:  client,
		emitter: emitter,
		ownerID: owner.ID,
		visitor: visibility.Viewer{ID: visitor.ID, Role: enums.RoleVisitor},
	}
}

func createUser(t *testing.T, client *db.Client, email string, role enums.Role) models.User {
	t.Helper()
	u := models.User{ID: uuid.New(), Email: email, FullName: "User " + email, Role: role}
	require.NoError(t, client.DB().Create(&u).Error)
	return u
}

func (f *fixture) createGem(t *testing.T, name string, status enums.GemStatus) *models.Gem {
	t.Helper()
	termEnd := testNow.AddDate(0, 6, 0)
	gem := &models.Gem{
		OwnerID:     f.ownerID,
		Name:        name,
		Slug:        gems.Slugify(name),
		Description: "A place worth the detour",
		Category:    enums.GemCategoryNature,
		Country:     "Tanzania",
		City:        "Arusha",
		Status:      status,
		Tier:        enums.GemTierStandard,
		TermEndAt:   &termEnd,
	}
	require.NoError(t, gems.NewRepository(f.client.DB()).Create(context.Background(), gem))
	return gem
}

func TestAddIsIdempotentAndEmitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gem := f.createGem(t, "Chemka Hot Springs", enums.GemStatusApproved)

	first, created, err := f.svc.Add(ctx, f.visitor, gem.ID)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, gem.ID, first.GemID)
	require.NotNil(t, first.Gem)

	second, created, err := f.svc.Add(ctx, f.visitor, gem.ID)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	require.Len(t, f.emitter.events, 1)
	event := f.emitter.events[0]
	require.Equal(t, enums.EventFavoriteCreated, event.EventType)
	data, ok := event.Data.(payloads.FavoriteCreatedEvent)
	require.True(t, ok)
	require.Equal(t, f.ownerID, data.OwnerID)
	require.Equal(t, f.visitor.ID, data.UserID)
}

func TestAddRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.createGem(t, "Materuni Falls", enums.GemStatusPending)

	_, _, err := f.svc.Add(ctx, visibility.Viewer{}, pending.ID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	_, _, err = f.svc.Add(ctx, f.visitor, uuid.New())
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, _, err = f.svc.Add(ctx, f.visitor, pending.ID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	require.Empty(t, f.emitter.events)
}

func TestRemoveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gem := f.createGem(t, "Chemka Hot Springs", enums.GemStatusApproved)

	_, _, err := f.svc.Add(ctx, f.visitor, gem.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, f.visitor, gem.ID))
	require.NoError(t, f.svc.Remove(ctx, f.visitor, gem.ID))

	page, err := f.svc.ListMine(ctx, f.visitor, 1, 10)
	require.NoError(t, err)
	require.Zero(t, page.Total)

	// Re-adding after removal is a fresh favorite.
	_, created, err := f.svc.Add(ctx, f.visitor, gem.ID)
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, f.emitter.events, 2)
}

func TestListMineHidesGemsNoLongerPublic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	springs := f.createGem(t, "Chemka Hot Springs", enums.GemStatusApproved)
	falls := f.createGem(t, "Materuni Falls", enums.GemStatusApproved)

	_, _, err := f.svc.Add(ctx, f.visitor, springs.ID)
	require.NoError(t, err)
	f.svc.now = func() time.Time { return testNow.Add(time.Minute) }
	_, _, err = f.svc.Add(ctx, f.visitor, falls.ID)
	require.NoError(t, err)

	require.NoError(t, f.client.DB().Model(&models.Gem{}).Where("id = ?", springs.ID).
		UpdateColumn("status", enums.GemStatusExpired).Error)

	page, err := f.svc.ListMine(ctx, f.visitor, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
	require.Len(t, page.Items, 2)

	byGem := map[uuid.UUID]FavoriteDTO{}
	for _, item := range page.Items {
		byGem[item.GemID] = item
	}
	require.NotNil(t, byGem[falls.ID].Gem)
	require.Nil(t, byGem[springs.ID].Gem)
}
