package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/internal/ratings"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

type testRatingService struct {
	createFn func(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, input ratings.Input) (*ratings.RatingDTO, error)
	deleteFn func(ctx context.Context, viewer visibility.Viewer, gemID, ratingID uuid.UUID) error
}

func (s *testRatingService) List(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, page, limit int) (pagination.OffsetResult[ratings.RatingDTO], error) {
	return pagination.OffsetResult[ratings.RatingDTO]{Page: page, Limit: limit}, nil
}

func (s *testRatingService) Create(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, input ratings.Input) (*ratings.RatingDTO, error) {
	if s.createFn != nil {
		return s.createFn(ctx, viewer, gemID, input)
	}
	return &ratings.RatingDTO{}, nil
}

func (s *testRatingService) Update(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, input ratings.Input) (*ratings.RatingDTO, error) {
	return &ratings.RatingDTO{}, nil
}

func (s *testRatingService) Delete(ctx context.Context, viewer visibility.Viewer, gemID, ratingID uuid.UUID) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, viewer, gemID, ratingID)
	}
	return nil
}

func TestRatingCreateScoreOutOfRange(t *testing.T) {
	gemID := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/ratings/"+gemID, strings.NewReader(`{"score":6}`))
	req, _ = asViewer(req, enums.RoleVisitor)
	req = addRouteParam(req, "gemId", gemID)
	resp := httptest.NewRecorder()
	RatingCreate(&testRatingService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRatingCreateDuplicate(t *testing.T) {
	svc := &testRatingService{
		createFn: func(ctx context.Context, viewer visibility.Viewer, gemID uuid.UUID, input ratings.Input) (*ratings.RatingDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "You have already rated this gem")
		},
	}
	gemID := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/ratings/"+gemID, strings.NewReader(`{"score":4}`))
	req, _ = asViewer(req, enums.RoleVisitor)
	req = addRouteParam(req, "gemId", gemID)
	resp := httptest.NewRecorder()
	RatingCreate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if env := decodeError(t, resp); !strings.Contains(env.Error.Message, "already rated") {
		t.Fatalf("unexpected message %q", env.Error.Message)
	}
}

func TestRatingCreateCreated(t *testing.T) {
	gemID := uuid.New()
	svc := &testRatingService{
		createFn: func(ctx context.Context, viewer visibility.Viewer, gid uuid.UUID, input ratings.Input) (*ratings.RatingDTO, error) {
			if gid != gemID || input.Score != 5 || input.Comment == nil || *input.Comment != "Stunning views" {
				t.Fatalf("unexpected input %s %+v", gid, input)
			}
			return &ratings.RatingDTO{}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/ratings/"+gemID.String(), strings.NewReader(`{"score":5,"comment":"Stunning views"}`))
	req, _ = asViewer(req, enums.RoleVisitor)
	req = addRouteParam(req, "gemId", gemID.String())
	resp := httptest.NewRecorder()
	RatingCreate(svc, testLogger())(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
}

func TestRatingDeleteForwardsRatingID(t *testing.T) {
	ratingID := uuid.New()
	var got uuid.UUID
	svc := &testRatingService{
		deleteFn: func(ctx context.Context, viewer visibility.Viewer, gemID, rid uuid.UUID) error {
			got = rid
			return nil
		},
	}
	gemID := uuid.NewString()
	req := httptest.NewRequest(http.MethodDelete, "/api/ratings/"+gemID+"?ratingId="+ratingID.String(), nil)
	req, _ = asViewer(req, enums.RoleAdmin)
	req = addRouteParam(req, "gemId", gemID)
	resp := httptest.NewRecorder()
	RatingDelete(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if got != ratingID {
		t.Fatalf("expected rating id %s got %s", ratingID, got)
	}
}

func TestRatingDeleteOwnUsesNil(t *testing.T) {
	got := uuid.New()
	svc := &testRatingService{
		deleteFn: func(ctx context.Context, viewer visibility.Viewer, gemID, rid uuid.UUID) error {
			got = rid
			return nil
		},
	}
	gemID := uuid.NewString()
	req := httptest.NewRequest(http.MethodDelete, "/api/ratings/"+gemID, nil)
	req, _ = asViewer(req, enums.RoleVisitor)
	req = addRouteParam(req, "gemId", gemID)
	resp := httptest.NewRecorder()
	RatingDelete(svc, testLogger())(resp, req)

	if got != uuid.Nil {
		t.Fatalf("expected nil rating id, got %s", got)
	}
}
