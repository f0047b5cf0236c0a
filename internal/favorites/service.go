package favorites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

// FavoriteDTO pairs a saved gem with when it was saved. Gem is nil when the
// listing is no longer public.
type FavoriteDTO struct {
	ID        uuid.UUID    `json:"id"`
	GemID     uuid.UUID    `json:"gemId"`
	CreatedAt time.Time    `json:"createdAt"`
	Gem       *gems.GemDTO `json:"gem,omitempty"`
}

// Service exposes business rules for favorites.
type Service interface {
	Add(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID) (*FavoriteDTO, bool, error)
	Remove(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID) error
	ListMine(ctx context.Context, viewer visibility.Viewer, page, limit int) (pagination.OffsetResult[FavoriteDTO], error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the favorites service.
type ServiceParams struct {
	Repo     *Repository
	GemRepo  *gems.Repository
	DB       txRunner
	Outbox   outbox.Emitter
	Listings config.ListingsConfig
}

type service struct {
	repo     *Repository
	gems     *gems.Repository
	db       txRunner
	outbox   outbox.Emitter
	listings config.ListingsConfig
	now      func() time.Time
}

// NewService builds a favorites service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("favorites repository required")
	}
	if params.GemRepo == nil {
		return nil, fmt.Errorf("gem repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:     params.Repo,
		gems:     params.GemRepo,
		db:       params.DB,
		outbox:   params.Outbox,
		listings: params.Listings,
		now:      time.Now,
	}, nil
}

// Add saves the gem for the caller. It is idempotent; created reports
// whether a new row was written.
func (s *service) Add(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID) (*FavoriteDTO, bool, error) {
	if viewer.ID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	gem, err := s.gems.FindByID(ctx, gemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gem")
	}
	if err := visibility.EnsureGemVisible(visibility.GemVisibilityInput{
		Gem:            gem,
		Viewer:         viewer,
		Now:            s.now().UTC(),
		FreeTrialUntil: s.listings.FreeTrialUntil,
	}); err != nil {
		return nil, false, err
	}

	var (
		fav     *models.Favorite
		created bool
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.Find(ctx, viewer.ID, gemID)
		if err == nil {
			fav = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		fav = &models.Favorite{UserID: viewer.ID, GemID: gemID}
		if err := repo.Create(ctx, fav); err != nil {
			return err
		}
		created = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFavoriteCreated,
			AggregateType: enums.AggregateGem,
			AggregateID:   gemID,
			Actor:         &outbox.ActorRef{UserID: viewer.ID, Role: string(viewer.Role)},
			Data: payloads.FavoriteCreatedEvent{
				FavoriteID: fav.ID,
				GemID:      gemID,
				GemName:    gem.Name,
				OwnerID:    gem.OwnerID,
				UserID:     viewer.ID,
			},
		})
	})
	if err != nil {
		// A concurrent add won the unique index; treat it as already saved.
		if db.IsUniqueViolation(err, "") {
			existing, findErr := s.repo.Find(ctx, viewer.ID, gemID)
			if findErr == nil {
				return toDTO(existing, gem), false, nil
			}
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add favorite")
	}
	return toDTO(fav, gem), created, nil
}

func (s *service) Remove(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID) error {
	if viewer.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if _, err := s.repo.Delete(ctx, viewer.ID, gemID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove favorite")
	}
	return nil
}

func (s *service) ListMine(ctx context.Context, viewer visibility.Viewer, page, limit int) (pagination.OffsetResult[FavoriteDTO], error) {
	if viewer.ID == uuid.Nil {
		return pagination.OffsetResult[FavoriteDTO]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	p := pagination.NormalizePage(page, limit)
	rows, total, err := s.repo.ListByUser(ctx, viewer.ID, p)
	if err != nil {
		return pagination.OffsetResult[FavoriteDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list favorites")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.GemID)
	}
	now := s.now().UTC()
	visible, err := s.gems.FindByIDs(ctx, ids, gems.Visibility{
		Public:      true,
		Now:         now,
		InFreeTrial: s.listings.InFreeTrial(now),
	})
	if err != nil {
		return pagination.OffsetResult[FavoriteDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load favorite gems")
	}
	byID := make(map[uuid.UUID]*models.Gem, len(visible))
	for i := range visible {
		byID[visible[i].ID] = &visible[i]
	}

	items := make([]FavoriteDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *toDTO(&rows[i], byID[rows[i].GemID]))
	}
	return pagination.NewOffsetResult(items, p, total), nil
}

func toDTO(fav *models.Favorite, gem *models.Gem) *FavoriteDTO {
	return &FavoriteDTO{
		ID:        fav.ID,
		GemID:     fav.GemID,
		CreatedAt: fav.CreatedAt,
		Gem:       gems.FromModel(gem),
	}
}
