package ratings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

const maxCommentLength = 2000

// RatingDTO is the public shape of a review.
type RatingDTO struct {
	ID           uuid.UUID `json:"id"`
	GemID        uuid.UUID `json:"gemId"`
	UserID       uuid.UUID `json:"userId"`
	AuthorName   string    `json:"authorName,omitempty"`
	AuthorAvatar *string   `json:"authorAvatar,omitempty"`
	Score        int       `json:"score"`
	Comment      *string   `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Input carries a create or update request.
type Input struct {
	Score   int     `json:"score" validate:"required,min=1,max=5"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

// Service manages reviews on gems.
type Service interface {
	List(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, page, limit int) (pagination.OffsetResult[RatingDTO], error)
	Create(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, input Input) (*RatingDTO, error)
	Update(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, input Input) (*RatingDTO, error)
	Delete(ctx context.Context, viewer visibility.Viewer, gemID, ratingID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo     *Repository
	GemRepo  *gems.Repository
	DB       txRunner
	Outbox   outbox.Emitter
	Listings config.ListingsConfig
	Logger   *logger.Logger
}

type service struct {
	repo           *Repository
	gems           *gems.Repository
	db             txRunner
	outbox         outbox.Emitter
	freeTrialUntil time.Time
	logg           *logger.Logger
	now            func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ratings repository required")
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
		repo:           params.Repo,
		gems:           params.GemRepo,
		db:             params.DB,
		outbox:         params.Outbox,
		freeTrialUntil: params.Listings.FreeTrialUntil,
		logg:           params.Logger,
		now:            time.Now,
	}, nil
}

func (s *service) List(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, page, limit int) (pagination.OffsetResult[RatingDTO], error) {
	p := pagination.NormalizePage(page, limit)
	if _, err := s.visibleGem(ctx, viewer, gemID); err != nil {
		return pagination.OffsetResult[RatingDTO]{}, err
	}
	rows, total, err := s.repo.ListByGem(ctx, gemID, p)
	if err != nil {
		return pagination.OffsetResult[RatingDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ratings")
	}
	items := make([]RatingDTO, 0, len(rows))
	for _, row := range rows {
		dto := fromModel(&row.Rating)
		dto.AuthorName = row.AuthorName
		dto.AuthorAvatar = row.AuthorAvatar
		items = append(items, dto)
	}
	return pagination.NewOffsetResult(items, p, total), nil
}

func (s *service) Create(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, input Input) (*RatingDTO, error) {
	if viewer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	comment, err := validateInput(input)
	if err != nil {
		return nil, err
	}
	gem, err := s.visibleGem(ctx, viewer, gemID)
	if err != nil {
		return nil, err
	}
	if gem.OwnerID == viewer.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "you cannot rate your own gem")
	}

	rating := &models.Rating{
		GemID:   gemID,
		UserID:  viewer.ID,
		Score:   input.Score,
		Comment: comment,
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByGemAndUser(ctx, gemID, viewer.ID); err == nil {
			return errAlreadyRated
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := repo.Create(ctx, rating); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errAlreadyRated
			}
			return err
		}
		if err := s.gems.WithTx(tx).RefreshRatingAggregate(ctx, gemID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRatingCreated,
			AggregateType: enums.AggregateRating,
			AggregateID:   rating.ID,
			Actor:         &outbox.ActorRef{UserID: viewer.ID, Role: string(viewer.Role)},
			Data: payloads.RatingCreatedEvent{
				RatingID: rating.ID,
				GemID:    gemID,
				GemName:  gem.Name,
				OwnerID:  gem.OwnerID,
				AuthorID: viewer.ID,
				Score:    rating.Score,
			},
		})
	})
	if err != nil {
		if errors.Is(err, errAlreadyRated) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "You have already rated this gem")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create rating")
	}
	dto := fromModel(rating)
	return &dto, nil
}

// Update edits the caller's own rating on gemID.
func (s *service) Update(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, input Input) (*RatingDTO, error) {
	if viewer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	comment, err := validateInput(input)
	if err != nil {
		return nil, err
	}

	var updated *models.Rating
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rating, err := repo.FindByGemAndUser(ctx, gemID, viewer.ID)
		if err != nil {
			return err
		}
		rating.Score = input.Score
		rating.Comment = comment
		rating.UpdatedAt = s.now().UTC()
		if err := repo.Update(ctx, rating); err != nil {
			return err
		}
		updated = rating
		return s.gems.WithTx(tx).RefreshRatingAggregate(ctx, gemID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rating not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update rating")
	}
	dto := fromModel(updated)
	return &dto, nil
}

// Delete removes the caller's rating on gemID. Admins may pass ratingID to
// remove someone else's review.
func (s *service) Delete(ctx context.Context, viewer visibility.Viewer, gemID, ratingID uuid.UUID) error {
	if viewer.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if ratingID != uuid.Nil && viewer.Role != enums.RoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only admins can remove other users' ratings")
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var (
			rating *models.Rating
			err    error
		)
		if ratingID != uuid.Nil {
			rating, err = repo.FindByID(ctx, ratingID)
			if err == nil && rating.GemID != gemID {
				err = gorm.ErrRecordNotFound
			}
		} else {
			rating, err = repo.FindByGemAndUser(ctx, gemID, viewer.ID)
		}
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, rating.ID); err != nil {
			return err
		}
		return s.gems.WithTx(tx).RefreshRatingAggregate(ctx, gemID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "rating not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete rating")
	}
	return nil
}

var errAlreadyRated = errors.New("already rated")

func (s *service) visibleGem(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID) (*models.Gem, error) {
	gem, err := s.gems.FindByID(ctx, gemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gem")
	}
	if err := visibility.EnsureGemVisible(visibility.GemVisibilityInput{
		Gem:            gem,
		Viewer:         viewer,
		Now:            s.now().UTC(),
		FreeTrialUntil: s.freeTrialUntil,
	}); err != nil {
		return nil, err
	}
	return gem, nil
}

func validateInput(input Input) (*string, error) {
	if input.Score < 1 || input.Score > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "score must be between 1 and 5")
	}
	if input.Comment == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*input.Comment)
	if trimmed == "" {
		return nil, nil
	}
	if len([]rune(trimmed)) > maxCommentLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("comment must be at most %d characters", maxCommentLength))
	}
	return &trimmed, nil
}

func fromModel(r *models.Rating) RatingDTO {
	return RatingDTO{
		ID:        r.ID,
		GemID:     r.GemID,
		UserID:    r.UserID,
		Score:     r.Score,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
