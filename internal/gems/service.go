package gems

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/geo"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

const (
	defaultRadiusKm = 25.0
	maxRadiusKm     = 500.0
	defaultNearby   = 20
	maxNearby       = 100
	maxSlugAttempts = 5
)

// Service exposes listing operations.
type Service interface {
	List(ctx context.Context, viewer visibility.Viewer, filters ListFilters) (pagination.OffsetResult[GemDTO], error)
	Get(ctx context.Context, viewer visibility.Viewer, idOrSlug string) (*GemDTO, error)
	Create(ctx context.Context, viewer visibility.Viewer, input CreateGemInput) (*GemDTO, error)
	Update(ctx context.Context, viewer visibility.Viewer, id uuid.UUID, input UpdateGemInput) (*GemDTO, error)
	Delete(ctx context.Context, viewer visibility.Viewer, id uuid.UUID) error
	Nearby(ctx context.Context, viewer visibility.Viewer, input NearbyInput) ([]GemDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type OwnerPromoter interface {
	PromoteVisitor(ctx context.Context, id uuid.UUID) error
}

type AssetDestroyer interface {
	Destroy(ctx context.Context, publicID string, kind enums.MediaKind) error
}

// ServiceParams bundles listing dependencies.
type ServiceParams struct {
	Repo     *Repository
	DB       txRunner
	Outbox   outbox.Emitter
	Users    func(tx *gorm.DB) OwnerPromoter
	Assets   AssetDestroyer
	Listings config.ListingsConfig
	Logger   *logger.Logger
}

type service struct {
	repo     *Repository
	db       txRunner
	outbox   outbox.Emitter
	users    func(tx *gorm.DB) OwnerPromoter
	assets   AssetDestroyer
	listings config.ListingsConfig
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("gem repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user repository factory required")
	}
	return &service{
		repo:     params.Repo,
		db:       params.DB,
		outbox:   params.Outbox,
		users:    params.Users,
		assets:   params.Assets,
		listings: params.Listings,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

func (s *service) visibility(now time.Time) Visibility {
	return Visibility{Public: true, Now: now, InFreeTrial: s.listings.InFreeTrial(now)}
}

func (s *service) List(ctx context.Context, viewer visibility.Viewer, filters ListFilters) (pagination.OffsetResult[GemDTO], error) {
	page := pagination.NormalizePage(filters.Page, filters.Limit)
	now := s.now().UTC()
	vis := s.visibility(now)

	switch {
	case filters.OwnerID != nil:
		if *filters.OwnerID != viewer.ID && viewer.Role != enums.RoleAdmin {
			return pagination.OffsetResult[GemDTO]{}, pkgerrors.New(pkgerrors.CodeForbidden, "cannot list another owner's gems")
		}
		vis = Visibility{}
	case viewer.Role == enums.RoleAdmin && filters.Status != nil:
		vis = Visibility{}
	default:
		filters.Status = nil
	}

	rows, total, err := s.repo.List(ctx, filters, vis, page)
	if err != nil {
		return pagination.OffsetResult[GemDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list gems")
	}
	items := make([]GemDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return pagination.NewOffsetResult(items, page, total), nil
}

func (s *service) Get(ctx context.Context, viewer visibility.Viewer, idOrSlug string) (*GemDTO, error) {
	gem, err := s.lookup(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := visibility.EnsureGemVisible(visibility.GemVisibilityInput{
		Gem:            gem,
		Viewer:         viewer,
		Now:            now,
		FreeTrialUntil: s.listings.FreeTrialUntil,
	}); err != nil {
		return nil, err
	}

	if !visibility.CanManage(gem, viewer) {
		if err := s.repo.IncrementViews(ctx, gem.ID); err != nil {
			s.warn(ctx, "increment gem views failed", err)
		} else {
			gem.ViewCount++
		}
	}
	return FromModel(gem), nil
}

func (s *service) lookup(ctx context.Context, idOrSlug string) (*models.Gem, error) {
	key := strings.TrimSpace(idOrSlug)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
	}
	var (
		gem *models.Gem
		err error
	)
	if id, parseErr := uuid.Parse(key); parseErr == nil {
		gem, err = s.repo.FindByID(ctx, id)
	} else {
		gem, err = s.repo.FindBySlug(ctx, strings.ToLower(key))
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gem")
	}
	return gem, nil
}

func (s *service) Create(ctx context.Context, viewer visibility.Viewer, input CreateGemInput) (*GemDTO, error) {
	if viewer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	gem := &models.Gem{
		OwnerID:     viewer.ID,
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Category:    input.Category,
		Country:     strings.TrimSpace(input.Country),
		City:        strings.TrimSpace(input.City),
		Address:     trimmedOrNil(input.Address),
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		Phone:       trimmedOrNil(input.Phone),
		Email:       trimmedOrNil(input.Email),
		Website:     trimmedOrNil(input.Website),
		Instagram:   trimmedOrNil(input.Instagram),
		Tags:        normalizeTags(input.Tags),
		Status:      enums.GemStatusPending,
		Tier:        enums.GemTierStandard,
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if viewer.Role == enums.RoleVisitor {
			if err := s.users(tx).PromoteVisitor(ctx, viewer.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "promote visitor to owner")
			}
		}
		slug, err := s.uniqueSlug(ctx, repo, gem.Name, uuid.Nil)
		if err != nil {
			return err
		}
		gem.Slug = slug
		if err := repo.Create(ctx, gem); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "slug already taken")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert gem")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventGemSubmitted,
			AggregateType: enums.AggregateGem,
			AggregateID:   gem.ID,
			Actor:         actorRef(viewer),
			Data: payloads.GemSubmittedEvent{
				GemID:   gem.ID,
				OwnerID: gem.OwnerID,
				Name:    gem.Name,
				Slug:    gem.Slug,
				City:    gem.City,
				Country: gem.Country,
			},
		})
	})
	if err != nil {
		return nil, asTyped(err, "create gem")
	}
	if s.logg != nil {
		ctx = s.logg.WithGemID(ctx, gem.ID.String())
		s.logg.Info(ctx, "gem submitted")
	}
	return s.reload(ctx, gem.ID)
}

func (s *service) Update(ctx context.Context, viewer visibility.Viewer, id uuid.UUID, input UpdateGemInput) (*GemDTO, error) {
	if viewer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	isAdmin := viewer.Role == enums.RoleAdmin
	if input.touchesModeration() && !isAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status, tier and rejectionReason can only be changed by an admin")
	}
	if !input.touchesModeration() && !input.touchesContent() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no changes supplied")
	}
	if err := validateUpdate(input); err != nil {
		return nil, err
	}

	var statusEvent *payloads.GemStatusChangedEvent
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		gem, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gem")
		}
		if !visibility.CanManage(gem, viewer) {
			// Non-managers learn nothing about hidden gems.
			if !visibility.IsPublic(gem, s.now().UTC(), s.listings.FreeTrialUntil) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
			}
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner or an admin can edit this gem")
		}

		previous := gem.Status
		nameChanged := applyContent(gem, input)
		if nameChanged {
			slug, err := s.uniqueSlug(ctx, repo, gem.Name, gem.ID)
			if err != nil {
				return err
			}
			gem.Slug = slug
		}

		if isAdmin {
			applyModeration(gem, input)
		} else {
			gem.Status = enums.GemStatusPending
			gem.RejectionReason = nil
		}
		gem.UpdatedAt = s.now().UTC()

		if err := repo.Save(ctx, gem); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "slug already taken")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update gem")
		}

		if isAdmin && gem.Status != previous {
			event := payloads.GemStatusChangedEvent{
				GemID:          gem.ID,
				OwnerID:        gem.OwnerID,
				Name:           gem.Name,
				Slug:           gem.Slug,
				PreviousStatus: previous,
				Status:         gem.Status,
			}
			if gem.RejectionReason != nil {
				event.RejectionReason = *gem.RejectionReason
			}
			statusEvent = &event
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventGemStatusChanged,
				AggregateType: enums.AggregateGem,
				AggregateID:   gem.ID,
				Actor:         actorRef(viewer),
				Data:          event,
			})
		}
		return nil
	})
	if err != nil {
		return nil, asTyped(err, "update gem")
	}
	if statusEvent != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"gem_id":          id.String(),
			"previous_status": string(statusEvent.PreviousStatus),
			"status":          string(statusEvent.Status),
		})
		s.logg.Info(logCtx, "gem status changed")
	}
	return s.reload(ctx, id)
}

func (s *service) Delete(ctx context.Context, viewer visibility.Viewer, id uuid.UUID) error {
	if viewer.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	var media []models.GemMedia
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		gem, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gem")
		}
		if !visibility.CanManage(gem, viewer) {
			if !visibility.IsPublic(gem, s.now().UTC(), s.listings.FreeTrialUntil) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
			}
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner or an admin can delete this gem")
		}
		media = gem.Media
		if err := repo.DeleteMedia(ctx, gem.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete gem media")
		}
		if err := repo.Delete(ctx, gem.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete gem")
		}
		return nil
	})
	if err != nil {
		return asTyped(err, "delete gem")
	}

	if s.assets != nil {
		for _, m := range media {
			if err := s.assets.Destroy(ctx, m.PublicID, m.Kind); err != nil {
				s.warn(ctx, "destroy gem asset failed", err)
			}
		}
	}
	return nil
}

// Nearby prefers the gems_nearby database function and falls back to a
// bounding-box query filtered by haversine distance. When neither finds
// anything and a country or city is supplied, those filters are used instead.
func (s *service) Nearby(ctx context.Context, viewer visibility.Viewer, input NearbyInput) ([]GemDTO, error) {
	if input.Lat == nil || input.Lng == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lat and lng are required")
	}
	center := geo.Point{Lat: *input.Lat, Lng: *input.Lng}
	if !center.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lat/lng out of range")
	}
	radius := input.RadiusKm
	if radius <= 0 {
		radius = defaultRadiusKm
	}
	radius = math.Min(radius, maxRadiusKm)
	limit := input.Limit
	if limit <= 0 {
		limit = defaultNearby
	}
	if limit > maxNearby {
		limit = maxNearby
	}
	vis := s.visibility(s.now().UTC())

	results, err := s.nearbyViaFunction(ctx, center, radius, limit, vis)
	if err != nil {
		if s.logg != nil {
			s.logg.Debug(ctx, "gems_nearby unavailable, using bounding box: "+err.Error())
		}
		results, err = s.nearbyViaBox(ctx, center, radius, limit, vis)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "nearby gems")
		}
	}

	if len(results) == 0 && (strings.TrimSpace(input.Country) != "" || strings.TrimSpace(input.City) != "") {
		fallback, err := s.List(ctx, viewer, ListFilters{Country: input.Country, City: input.City, Limit: limit})
		if err != nil {
			return nil, err
		}
		return fallback.Items, nil
	}
	return results, nil
}

func (s *service) nearbyViaFunction(ctx context.Context, center geo.Point, radius float64, limit int, vis Visibility) ([]GemDTO, error) {
	// Over-fetch so the term filter applied afterwards still fills the page.
	rows, err := s.repo.NearbyFunction(ctx, center, radius, limit*2)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	distance := make(map[uuid.UUID]float64, len(rows))
	for _, row := range rows {
		ids = append(ids, row.GemID)
		distance[row.GemID] = row.DistanceKm
	}
	gems, err := s.repo.FindByIDs(ctx, ids, vis)
	if err != nil {
		return nil, err
	}
	return rankByDistance(gems, func(g *models.Gem) (float64, bool) {
		d, ok := distance[g.ID]
		return d, ok
	}, limit), nil
}

func (s *service) nearbyViaBox(ctx context.Context, center geo.Point, radius float64, limit int, vis Visibility) ([]GemDTO, error) {
	candidates, err := s.repo.ListInBox(ctx, geo.BoundingBox(center, radius), vis)
	if err != nil {
		return nil, err
	}
	return rankByDistance(candidates, func(g *models.Gem) (float64, bool) {
		if g.Latitude == nil || g.Longitude == nil {
			return 0, false
		}
		d := geo.DistanceKm(center, geo.Point{Lat: *g.Latitude, Lng: *g.Longitude})
		return d, d <= radius
	}, limit), nil
}

func rankByDistance(gems []models.Gem, distanceOf func(*models.Gem) (float64, bool), limit int) []GemDTO {
	out := make([]GemDTO, 0, len(gems))
	for i := range gems {
		d, ok := distanceOf(&gems[i])
		if !ok {
			continue
		}
		dto := FromModel(&gems[i])
		rounded := roundTo(d, 2)
		dto.DistanceKm = &rounded
		out = append(out, *dto)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].DistanceKm < *out[j].DistanceKm
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *service) uniqueSlug(ctx context.Context, repo *Repository, name string, self uuid.UUID) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "gem"
	}
	candidate := base
	now := s.now()
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		taken, err := repo.SlugExists(ctx, candidate, self)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check slug")
		}
		if !taken {
			return candidate, nil
		}
		candidate = suffixedSlug(base, now.Add(time.Duration(attempt)*time.Second))
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not derive a unique slug")
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*GemDTO, error) {
	gem, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload gem")
	}
	return FromModel(gem), nil
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func applyContent(gem *models.Gem, in UpdateGemInput) (nameChanged bool) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		nameChanged = name != gem.Name
		gem.Name = name
	}
	if in.Description != nil {
		gem.Description = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil {
		gem.Category = *in.Category
	}
	if in.Country != nil {
		gem.Country = strings.TrimSpace(*in.Country)
	}
	if in.City != nil {
		gem.City = strings.TrimSpace(*in.City)
	}
	if in.Address != nil {
		gem.Address = trimmedOrNil(in.Address)
	}
	if in.Latitude != nil {
		gem.Latitude = in.Latitude
	}
	if in.Longitude != nil {
		gem.Longitude = in.Longitude
	}
	if in.Phone != nil {
		gem.Phone = trimmedOrNil(in.Phone)
	}
	if in.Email != nil {
		gem.Email = trimmedOrNil(in.Email)
	}
	if in.Website != nil {
		gem.Website = trimmedOrNil(in.Website)
	}
	if in.Instagram != nil {
		gem.Instagram = trimmedOrNil(in.Instagram)
	}
	if in.Tags != nil {
		gem.Tags = normalizeTags(*in.Tags)
	}
	return nameChanged
}

func applyModeration(gem *models.Gem, in UpdateGemInput) {
	if in.Status != nil {
		gem.Status = *in.Status
		if gem.Status != enums.GemStatusRejected {
			gem.RejectionReason = nil
		}
	}
	if in.Tier != nil {
		gem.Tier = *in.Tier
	}
	if in.RejectionReason != nil {
		gem.RejectionReason = trimmedOrNil(in.RejectionReason)
	}
}

func validateCreate(in CreateGemInput) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case strings.TrimSpace(in.Description) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	case !in.Category.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	case strings.TrimSpace(in.Country) == "" || strings.TrimSpace(in.City) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "country and city are required")
	}
	return validateCoordinates(in.Latitude, in.Longitude)
}

func validateUpdate(in UpdateGemInput) error {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
	}
	if in.Category != nil && !in.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	}
	if in.Status != nil && !in.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	if in.Tier != nil && !in.Tier.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid tier")
	}
	if in.Status != nil && *in.Status == enums.GemStatusRejected && (in.RejectionReason == nil || strings.TrimSpace(*in.RejectionReason) == "") {
		return pkgerrors.New(pkgerrors.CodeValidation, "rejectionReason is required when rejecting")
	}
	return validateCoordinates(in.Latitude, in.Longitude)
}

func validateCoordinates(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "latitude and longitude must be supplied together")
	}
	if lat != nil && !(geo.Point{Lat: *lat, Lng: *lng}).Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "latitude/longitude out of range")
	}
	return nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func actorRef(viewer visibility.Viewer) *outbox.ActorRef {
	if viewer.ID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: viewer.ID, Role: string(viewer.Role)}
}

func asTyped(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
