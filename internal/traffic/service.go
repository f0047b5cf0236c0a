package traffic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

const (
	defaultDays   = 7
	maxDays       = 90
	maxPathLength = 512
)

// RecordInput is one page view reported by the frontend.
type RecordInput struct {
	Path      string     `json:"path" validate:"required,max=512"`
	GemID     *uuid.UUID `json:"gemId,omitempty"`
	SessionID *string    `json:"sessionId,omitempty" validate:"omitempty,max=128"`
	Referrer  *string    `json:"referrer,omitempty" validate:"omitempty,max=1024"`
	UserAgent *string    `json:"-"`
	Country   *string    `json:"-"`
}

// StatsQuery selects the window and optional gem for Stats.
type StatsQuery struct {
	Days  int
	GemID *uuid.UUID
}

// StatsResponse is the rendered payload cached per query.
type StatsResponse struct {
	Days  int        `json:"days"`
	GemID *uuid.UUID `json:"gemId,omitempty"`
	Since time.Time  `json:"since"`
	Summary
}

// Service records page views and serves aggregated stats.
type Service interface {
	Record(ctx context.Context, input RecordInput) error
	Stats(ctx context.Context, viewer visibility.Viewer, query StatsQuery) (json.RawMessage, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type gemLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Gem, error)
}

type ServiceParams struct {
	Store    Store
	Users    userLookup
	Gems     gemLookup
	CacheTTL time.Duration
}

type service struct {
	store Store
	users userLookup
	gems  gemLookup
	cache *statsCache
	now   func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("traffic store required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if params.Gems == nil {
		return nil, fmt.Errorf("gem lookup required")
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &service{
		store: params.Store,
		users: params.Users,
		gems:  params.Gems,
		cache: newStatsCache(ttl),
		now:   time.Now,
	}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) error {
	path := strings.TrimSpace(input.Path)
	if path == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "path is required")
	}
	if len(path) > maxPathLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "path is too long")
	}
	view := &models.PageView{
		Path:      path,
		GemID:     input.GemID,
		SessionID: nonEmpty(input.SessionID),
		Referrer:  nonEmpty(input.Referrer),
		UserAgent: nonEmpty(input.UserAgent),
		Country:   nonEmpty(input.Country),
		ViewedAt:  s.now().UTC(),
	}
	if err := s.store.Insert(ctx, view); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record page view")
	}
	return nil
}

// Stats returns the JSON rendering of the traffic summary. Identical queries
// within the cache TTL return the same bytes without hitting the store.
func (s *service) Stats(ctx context.Context, viewer visibility.Viewer, query StatsQuery) (json.RawMessage, error) {
	if err := s.authorize(ctx, viewer, query.GemID); err != nil {
		return nil, err
	}

	days := query.Days
	if days <= 0 {
		days = defaultDays
	}
	if days > maxDays {
		days = maxDays
	}
	key := cacheKey(days, query.GemID)
	now := s.now().UTC()
	if body, ok := s.cache.get(key, now); ok {
		return body, nil
	}

	since := startOfDay(now).AddDate(0, 0, -(days - 1))
	summary, err := s.store.Summarize(ctx, since, query.GemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summarize traffic")
	}
	body, err := json.Marshal(StatsResponse{
		Days:    days,
		GemID:   query.GemID,
		Since:   since,
		Summary: *summary,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode traffic stats")
	}
	s.cache.put(key, body, now)
	return body, nil
}

// authorize allows admins everything and owners stats for their own gems.
// The role always comes from the stored profile.
func (s *service) authorize(ctx context.Context, viewer visibility.Viewer, gemID *uuid.UUID) error {
	if viewer.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	user, err := s.users.FindByID(ctx, viewer.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "profile not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile")
	}
	if user.Role == enums.RoleAdmin {
		return nil
	}
	if gemID == nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	gem, err := s.gems.FindByID(ctx, *gemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gem")
	}
	if gem.OwnerID != viewer.ID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "you do not own this gem")
	}
	return nil
}

func cacheKey(days int, gemID *uuid.UUID) string {
	gem := "all"
	if gemID != nil {
		gem = gemID.String()
	}
	return fmt.Sprintf("days=%d&gem=%s", days, gem)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nonEmpty(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
