package admin

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/internal/payments"
	"github.com/hiddengems/hiddengems-backend/internal/users"
	"github.com/hiddengems/hiddengems-backend/pkg/auth"
	"github.com/hiddengems/hiddengems-backend/pkg/db"
	"github.com/hiddengems/hiddengems-backend/pkg/db/dbtest"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
)

type recordingEmitter struct {
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type stubPayments struct {
	listCalls int
}

func (s *stubPayments) List(ctx context.Context, filters payments.ListFilters) (pagination.OffsetResult[payments.PaymentDTO], error) {
	s.listCalls++
	return pagination.NewOffsetResult([]payments.PaymentDTO{}, pagination.NormalizePage(filters.Page, filters.Limit), 0), nil
}

func (s *stubPayments) Stats(ctx context.Context) (*payments.Stats, error) {
	return &payments.Stats{Currency: enums.CurrencyKES}, nil
}

type fixture struct {
	svc      Service
	gate     *Gate
	client   *db.Client
	emitter  *recordingEmitter
	payments *stubPayments
	admin    models.User
	owner    models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	admin := createUser(t, client, "admin@example.com", enums.RoleAdmin)
	owner := createUser(t, client, "owner@example.com", enums.RoleOwner)

	userRepo := users.NewRepository(client.DB())
	emitter := &recordingEmitter{}
	gemSvc, err := gems.NewService(gems.ServiceParams{
		Repo:   gems.NewRepository(client.DB()),
		DB:     client,
		Outbox: emitter,
		Users: func(tx *gorm.DB) gems.OwnerPromoter {
			return users.NewRepository(tx)
		},
	})
	require.NoError(t, err)

	gate := NewGate(userRepo)
	stub := &stubPayments{}
	svc, err := NewService(ServiceParams{
		Gate:     gate,
		Users:    userRepo,
		Gems:     gemSvc,
		Payments: stub,
		DB:       client,
		Outbox:   emitter,
	})
	require.NoError(t, err)
	return &fixture{
		svc:      svc,
		gate:     gate,
		client:   client,
		emitter:  emitter,
		payments: stub,
		admin:    admin,
		owner:    owner,
	}
}

func createUser(t *testing.T, client *db.Client, email string, role enums.Role) models.User {
	t.Helper()
	u := models.User{ID: uuid.New(), Email: email, FullName: "User " + email, Role: role}
	require.NoError(t, client.DB().Create(&u).Error)
	return u
}

func as(user models.User) context.Context {
	return auth.WithUserID(context.Background(), user.ID)
}

func (f *fixture) pendingGem(t *testing.T) *models.Gem {
	t.Helper()
	gem := &models.Gem{
		OwnerID:     f.owner.ID,
		Name:        "Kazuri Beads Factory",
		Slug:        "kazuri-beads-factory",
		Description: "Handmade ceramic beads",
		Category:    enums.GemCategoryArtsCrafts,
		Country:     "Kenya",
		City:        "Nairobi",
		Status:      enums.GemStatusPending,
		Tier:        enums.GemTierStandard,
	}
	require.NoError(t, gems.NewRepository(f.client.DB()).Create(context.Background(), gem))
	return gem
}

func TestRequireAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.RequireAdmin(context.Background())
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	_, err = f.gate.RequireAdmin(as(f.owner))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = f.gate.RequireAdmin(auth.WithUserID(context.Background(), uuid.New()))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	identity, err := f.gate.RequireAdmin(as(f.admin))
	require.NoError(t, err)
	require.Equal(t, f.admin.ID, identity.ID)
	require.Equal(t, "admin@example.com", identity.Email)
}

func TestRequireAdminReadsProfileEveryCall(t *testing.T) {
	f := newFixture(t)
	ctx := as(f.admin)

	_, err := f.gate.RequireAdmin(ctx)
	require.NoError(t, err)

	require.NoError(t, users.NewRepository(f.client.DB()).UpdateRole(context.Background(), f.admin.ID, enums.RoleVisitor))
	_, err = f.gate.RequireAdmin(ctx)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
}

func TestEveryOperationIsGated(t *testing.T) {
	f := newFixture(t)
	ctx := as(f.owner)
	gemID := uuid.New()

	_, err := f.svc.ListUsers(ctx, UserFilters{})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
	_, err = f.svc.SetUserRole(ctx, f.owner.ID, enums.RoleAdmin)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
	_, err = f.svc.ListPayments(ctx, payments.ListFilters{})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
	_, err = f.svc.PaymentStats(ctx)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
	_, err = f.svc.ApproveGem(ctx, gemID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
	_, err = f.svc.RejectGem(ctx, gemID, "no")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
	_, err = f.svc.SetGemTier(ctx, gemID, enums.GemTierFeatured)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
	err = f.svc.Announce(ctx, AnnouncementInput{Title: "t", Message: "m"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	require.Zero(t, f.payments.listCalls)
	require.Empty(t, f.emitter.events)
}

func TestSetUserRole(t *testing.T) {
	f := newFixture(t)
	ctx := as(f.admin)

	_, err := f.svc.SetUserRole(ctx, f.admin.ID, enums.RoleOwner)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.SetUserRole(ctx, f.owner.ID, enums.Role("superuser"))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.SetUserRole(ctx, uuid.New(), enums.RoleOwner)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	updated, err := f.svc.SetUserRole(ctx, f.owner.ID, enums.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, enums.RoleAdmin, updated.Role)
}

func TestListUsersFiltersByRoleAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := as(f.admin)
	createUser(t, f.client, "zawadi@example.com", enums.RoleVisitor)

	role := enums.RoleVisitor
	page, err := f.svc.ListUsers(ctx, UserFilters{Role: &role})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, "zawadi@example.com", page.Items[0].Email)

	page, err = f.svc.ListUsers(ctx, UserFilters{Search: "OWNER@"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
}

func TestModerateGem(t *testing.T) {
	f := newFixture(t)
	ctx := as(f.admin)

	gem := f.pendingGem(t)
	approved, err := f.svc.ApproveGem(ctx, gem.ID)
	require.NoError(t, err)
	require.Equal(t, enums.GemStatusApproved, approved.Status)
	require.Len(t, f.emitter.events, 1)
	require.Equal(t, enums.EventGemStatusChanged, f.emitter.events[0].EventType)

	_, err = f.svc.RejectGem(ctx, gem.ID, "   ")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	rejected, err := f.svc.RejectGem(ctx, gem.ID, "Photos do not match the venue")
	require.NoError(t, err)
	require.Equal(t, enums.GemStatusRejected, rejected.Status)
	require.Equal(t, "Photos do not match the venue", *rejected.RejectionReason)

	featured, err := f.svc.SetGemTier(ctx, gem.ID, enums.GemTierFeatured)
	require.NoError(t, err)
	require.Equal(t, enums.GemTierFeatured, featured.Tier)
}

func TestAnnounceEmitsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := as(f.admin)

	err := f.svc.Announce(ctx, AnnouncementInput{Title: " ", Message: "m"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	err = f.svc.Announce(ctx, AnnouncementInput{
		Title:   "Scheduled maintenance",
		Message: "Payments pause Sunday 02:00 EAT.",
		Roles:   []enums.Role{enums.RoleOwner},
	})
	require.NoError(t, err)
	require.Len(t, f.emitter.events, 1)
	event := f.emitter.events[0]
	require.Equal(t, enums.EventSystemAnnouncement, event.EventType)
	data := event.Data.(payloads.SystemAnnouncementEvent)
	require.Equal(t, []enums.Role{enums.RoleOwner}, data.Roles)
}
