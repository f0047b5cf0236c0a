package ratings

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
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

type recordingEmitter struct {
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	svc     *service
	client  *db.Client
	emitter *recordingEmitter
	owner   visibility.Viewer
	gem     *models.Gem
}

var testNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	owner := createUser(t, client, "owner@example.com", enums.RoleOwner)

	termEnd := testNow.AddDate(0, 6, 0)
	gem := &models.Gem{
		OwnerID:     owner.ID,
		Name:        "Kazuri Beads Factory",
		Slug:        "kazuri-beads-factory",
		Description: "Handmade ceramic beads",
		Category:    enums.GemCategoryArtsCrafts,
		Country:     "Kenya",
		City:        "Nairobi",
		Status:      enums.GemStatusApproved,
		Tier:        enums.GemTierStandard,
		TermEndAt:   &termEnd,
	}
	gemRepo := gems.NewRepository(client.DB())
	require.NoError(t, gemRepo.Create(context.Background(), gem))

	emitter := &recordingEmitter{}
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(client.DB()),
		GemRepo: gemRepo,
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
		owner:   visibility.Viewer{ID: owner.ID, Role: enums.RoleOwner},
		gem:     gem,
	}
}

func createUser(t *testing.T, client *db.Client, email string, role enums.Role) models.User {
	t.Helper()
	u := models.User{ID: uuid.New(), Email: email, FullName: "User " + email, Role: role}
	require.NoError(t, client.DB().Create(&u).Error)
	return u
}

func (f *fixture) reloadGem(t *testing.T) *models.Gem {
	t.Helper()
	gem, err := gems.NewRepository(f.client.DB()).FindByID(context.Background(), f.gem.ID)
	require.NoError(t, err)
	return gem
}

func TestCreateRatingUpdatesAggregateAndEmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	amina := createUser(t, f.client, "amina@example.com", enums.RoleVisitor)
	juma := createUser(t, f.client, "juma@example.com", enums.RoleVisitor)

	comment := "  Lovely workshop tour  "
	first, err := f.svc.Create(ctx, visibility.Viewer{ID: amina.ID, Role: enums.RoleVisitor}, f.gem.ID, Input{Score: 5, Comment: &comment})
	require.NoError(t, err)
	require.Equal(t, "Lovely workshop tour", *first.Comment)

	_, err = f.svc.Create(ctx, visibility.Viewer{ID: juma.ID, Role: enums.RoleVisitor}, f.gem.ID, Input{Score: 4})
	require.NoError(t, err)

	gem := f.reloadGem(t)
	require.EqualValues(t, 2, gem.RatingCount)
	require.InDelta(t, 4.5, gem.RatingAvg, 0.001)

	require.Len(t, f.emitter.events, 2)
	require.Equal(t, enums.EventRatingCreated, f.emitter.events[0].EventType)
	require.Equal(t, enums.AggregateRating, f.emitter.events[0].AggregateType)
}

func TestSecondRatingIsAlreadyRated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	visitor := createUser(t, f.client, "amina@example.com", enums.RoleVisitor)
	viewer := visibility.Viewer{ID: visitor.ID, Role: enums.RoleVisitor}

	_, err := f.svc.Create(ctx, viewer, f.gem.ID, Input{Score: 3})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, viewer, f.gem.ID, Input{Score: 5})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	require.Contains(t, pkgerrors.As(err).Message(), "already rated")
	require.Len(t, f.emitter.events, 1)
}

func TestCreateRatingRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	visitor := createUser(t, f.client, "amina@example.com", enums.RoleVisitor)
	viewer := visibility.Viewer{ID: visitor.ID, Role: enums.RoleVisitor}

	_, err := f.svc.Create(ctx, visibility.Viewer{}, f.gem.ID, Input{Score: 5})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	_, err = f.svc.Create(ctx, viewer, f.gem.ID, Input{Score: 6})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, f.owner, f.gem.ID, Input{Score: 5})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Create(ctx, viewer, uuid.New(), Input{Score: 5})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	require.NoError(t, f.client.DB().Model(&models.Gem{}).Where("id = ?", f.gem.ID).
		UpdateColumn("status", enums.GemStatusPending).Error)
	_, err = f.svc.Create(ctx, viewer, f.gem.ID, Input{Score: 5})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "hidden gems are not found, never forbidden")
}

func TestUpdateAndDeleteOwnRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	visitor := createUser(t, f.client, "amina@example.com", enums.RoleVisitor)
	viewer := visibility.Viewer{ID: visitor.ID, Role: enums.RoleVisitor}

	_, err := f.svc.Update(ctx, viewer, f.gem.ID, Input{Score: 2})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Create(ctx, viewer, f.gem.ID, Input{Score: 2})
	require.NoError(t, err)
	updated, err := f.svc.Update(ctx, viewer, f.gem.ID, Input{Score: 4})
	require.NoError(t, err)
	require.Equal(t, 4, updated.Score)
	require.InDelta(t, 4.0, f.reloadGem(t).RatingAvg, 0.001)

	require.NoError(t, f.svc.Delete(ctx, viewer, f.gem.ID, uuid.Nil))
	gem := f.reloadGem(t)
	require.Zero(t, gem.RatingCount)
	require.Zero(t, gem.RatingAvg)
}

func TestAdminDeletesAnyRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	visitor := createUser(t, f.client, "amina@example.com", enums.RoleVisitor)
	admin := createUser(t, f.client, "admin@example.com", enums.RoleAdmin)

	rating, err := f.svc.Create(ctx, visibility.Viewer{ID: visitor.ID, Role: enums.RoleVisitor}, f.gem.ID, Input{Score: 1})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, visibility.Viewer{ID: visitor.ID, Role: enums.RoleVisitor}, f.gem.ID, rating.ID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	require.NoError(t, f.svc.Delete(ctx, visibility.Viewer{ID: admin.ID, Role: enums.RoleAdmin}, f.gem.ID, rating.ID))
	require.Zero(t, f.reloadGem(t).RatingCount)
}

func TestListIncludesAuthorNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	visitor := createUser(t, f.client, "amina@example.com", enums.RoleVisitor)
	_, err := f.svc.Create(ctx, visibility.Viewer{ID: visitor.ID, Role: enums.RoleVisitor}, f.gem.ID, Input{Score: 5})
	require.NoError(t, err)

	page, err := f.svc.List(ctx, visibility.Viewer{}, f.gem.ID, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, "User amina@example.com", page.Items[0].AuthorName)
}
