package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/internal/payments"
	"github.com/hiddengems/hiddengems-backend/internal/users"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
)

const (
	maxAnnouncementTitle   = 120
	maxAnnouncementMessage = 1000
)

// UserFilters narrows the user listing.
type UserFilters struct {
	Role   *enums.Role
	Search string
	Page   int
	Limit  int
}

// AnnouncementInput is a system notification sent to every user, or to the
// listed roles only.
type AnnouncementInput struct {
	Title   string       `json:"title" validate:"required,max=120"`
	Message string       `json:"message" validate:"required,max=1000"`
	Roles   []enums.Role `json:"roles,omitempty"`
}

// Service bundles admin-only operations. Every method passes the gate before
// doing anything else.
type Service interface {
	ListUsers(ctx context.Context, filters UserFilters) (pagination.OffsetResult[users.UserDTO], error)
	SetUserRole(ctx context.Context, userID uuid.UUID, role enums.Role) (*users.UserDTO, error)
	ListPayments(ctx context.Context, filters payments.ListFilters) (pagination.OffsetResult[payments.PaymentDTO], error)
	PaymentStats(ctx context.Context) (*payments.Stats, error)
	ApproveGem(ctx context.Context, gemID uuid.UUID) (*gems.GemDTO, error)
	RejectGem(ctx context.Context, gemID uuid.UUID, reason string) (*gems.GemDTO, error)
	SetGemTier(ctx context.Context, gemID uuid.UUID, tier enums.GemTier) (*gems.GemDTO, error)
	Announce(ctx context.Context, input AnnouncementInput) error
}

type userStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, filters users.ListFilters, page pagination.Page) ([]models.User, int64, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role enums.Role) error
}

type paymentReader interface {
	List(ctx context.Context, filters payments.ListFilters) (pagination.OffsetResult[payments.PaymentDTO], error)
	Stats(ctx context.Context) (*payments.Stats, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Gate     *Gate
	Users    userStore
	Gems     gems.Service
	Payments paymentReader
	DB       txRunner
	Outbox   outbox.Emitter
	Logger   *logger.Logger
}

type service struct {
	gate     *Gate
	users    userStore
	gems     gems.Service
	payments paymentReader
	db       txRunner
	outbox   outbox.Emitter
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Gate == nil:
		return nil, fmt.Errorf("admin gate required")
	case params.Users == nil:
		return nil, fmt.Errorf("user store required")
	case params.Gems == nil:
		return nil, fmt.Errorf("gem service required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payment service required")
	case params.DB == nil:
		return nil, fmt.Errorf("db client required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		gate:     params.Gate,
		users:    params.Users,
		gems:     params.Gems,
		payments: params.Payments,
		db:       params.DB,
		outbox:   params.Outbox,
		logg:     params.Logger,
	}, nil
}

func (s *service) ListUsers(ctx context.Context, filters UserFilters) (pagination.OffsetResult[users.UserDTO], error) {
	if _, err := s.gate.RequireAdmin(ctx); err != nil {
		return pagination.OffsetResult[users.UserDTO]{}, err
	}
	if filters.Role != nil && !filters.Role.IsValid() {
		return pagination.OffsetResult[users.UserDTO]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid role filter")
	}
	page := pagination.NormalizePage(filters.Page, filters.Limit)
	rows, total, err := s.users.List(ctx, users.ListFilters{Role: filters.Role, Search: filters.Search}, page)
	if err != nil {
		return pagination.OffsetResult[users.UserDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}
	items := make([]users.UserDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *users.FromModel(&rows[i]))
	}
	return pagination.NewOffsetResult(items, page, total), nil
}

func (s *service) SetUserRole(ctx context.Context, userID uuid.UUID, role enums.Role) (*users.UserDTO, error) {
	identity, err := s.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if userID == identity.ID && role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "you cannot remove your own admin role")
	}
	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update role")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload user")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"admin_id":  identity.ID.String(),
			"target_id": userID.String(),
			"role":      string(role),
		})
		s.logg.Info(logCtx, "user role changed")
	}
	return users.FromModel(user), nil
}

func (s *service) ListPayments(ctx context.Context, filters payments.ListFilters) (pagination.OffsetResult[payments.PaymentDTO], error) {
	if _, err := s.gate.RequireAdmin(ctx); err != nil {
		return pagination.OffsetResult[payments.PaymentDTO]{}, err
	}
	return s.payments.List(ctx, filters)
}

func (s *service) PaymentStats(ctx context.Context) (*payments.Stats, error) {
	if _, err := s.gate.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.payments.Stats(ctx)
}

func (s *service) ApproveGem(ctx context.Context, gemID uuid.UUID) (*gems.GemDTO, error) {
	identity, err := s.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	status := enums.GemStatusApproved
	return s.gems.Update(ctx, identity.Viewer(), gemID, gems.UpdateGemInput{Status: &status})
}

func (s *service) RejectGem(ctx context.Context, gemID uuid.UUID, reason string) (*gems.GemDTO, error) {
	identity, err := s.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a rejection reason is required")
	}
	status := enums.GemStatusRejected
	return s.gems.Update(ctx, identity.Viewer(), gemID, gems.UpdateGemInput{Status: &status, RejectionReason: &reason})
}

func (s *service) SetGemTier(ctx context.Context, gemID uuid.UUID, tier enums.GemTier) (*gems.GemDTO, error) {
	identity, err := s.gate.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if !tier.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid tier")
	}
	return s.gems.Update(ctx, identity.Viewer(), gemID, gems.UpdateGemInput{Tier: &tier})
}

func (s *service) Announce(ctx context.Context, input AnnouncementInput) error {
	identity, err := s.gate.RequireAdmin(ctx)
	if err != nil {
		return err
	}
	title := strings.TrimSpace(input.Title)
	message := strings.TrimSpace(input.Message)
	if title == "" || message == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title and message are required")
	}
	if len([]rune(title)) > maxAnnouncementTitle || len([]rune(message)) > maxAnnouncementMessage {
		return pkgerrors.New(pkgerrors.CodeValidation, "announcement is too long")
	}
	for _, role := range input.Roles {
		if !role.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", role))
		}
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSystemAnnouncement,
			AggregateType: enums.AggregateUser,
			AggregateID:   identity.ID,
			Actor:         &outbox.ActorRef{UserID: identity.ID, Role: string(enums.RoleAdmin)},
			Data: payloads.SystemAnnouncementEvent{
				Title:   title,
				Message: message,
				Roles:   input.Roles,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue announcement")
	}
	return nil
}
