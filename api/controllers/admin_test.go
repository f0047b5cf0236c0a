package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/internal/admin"
	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/internal/payments"
	"github.com/hiddengems/hiddengems-backend/internal/users"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
)

type testAdminService struct {
	listPaymentsFn func(ctx context.Context, filters payments.ListFilters) (pagination.OffsetResult[payments.PaymentDTO], error)
	setRoleFn      func(ctx context.Context, userID uuid.UUID, role enums.Role) (*users.UserDTO, error)
	rejectFn       func(ctx context.Context, gemID uuid.UUID, reason string) (*gems.GemDTO, error)
	approveFn      func(ctx context.Context, gemID uuid.UUID) (*gems.GemDTO, error)
}

func (s *testAdminService) ListUsers(ctx context.Context, filters admin.UserFilters) (pagination.OffsetResult[users.UserDTO], error) {
	return pagination.OffsetResult[users.UserDTO]{}, nil
}

func (s *testAdminService) SetUserRole(ctx context.Context, userID uuid.UUID, role enums.Role) (*users.UserDTO, error) {
	if s.setRoleFn != nil {
		return s.setRoleFn(ctx, userID, role)
	}
	return &users.UserDTO{ID: userID}, nil
}

func (s *testAdminService) ListPayments(ctx context.Context, filters payments.ListFilters) (pagination.OffsetResult[payments.PaymentDTO], error) {
	if s.listPaymentsFn != nil {
		return s.listPaymentsFn(ctx, filters)
	}
	return pagination.OffsetResult[payments.PaymentDTO]{}, nil
}

func (s *testAdminService) PaymentStats(ctx context.Context) (*payments.Stats, error) {
	return &payments.Stats{}, nil
}

func (s *testAdminService) ApproveGem(ctx context.Context, gemID uuid.UUID) (*gems.GemDTO, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, gemID)
	}
	return &gems.GemDTO{ID: gemID}, nil
}

func (s *testAdminService) RejectGem(ctx context.Context, gemID uuid.UUID, reason string) (*gems.GemDTO, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, gemID, reason)
	}
	return &gems.GemDTO{ID: gemID}, nil
}

func (s *testAdminService) SetGemTier(ctx context.Context, gemID uuid.UUID, tier enums.GemTier) (*gems.GemDTO, error) {
	return &gems.GemDTO{ID: gemID}, nil
}

func (s *testAdminService) Announce(ctx context.Context, input admin.AnnouncementInput) error {
	return nil
}

func TestAdminListPaymentsFilters(t *testing.T) {
	userID := uuid.New()
	var got payments.ListFilters
	svc := &testAdminService{
		listPaymentsFn: func(ctx context.Context, filters payments.ListFilters) (pagination.OffsetResult[payments.PaymentDTO], error) {
			got = filters
			return pagination.OffsetResult[payments.PaymentDTO]{}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/payments?status=completed&purpose=renewal&userId="+userID.String(), nil)
	resp := httptest.NewRecorder()
	AdminListPayments(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if got.Status == nil || *got.Status != enums.PaymentStatusCompleted {
		t.Fatalf("unexpected status filter %v", got.Status)
	}
	if got.Purpose == nil || *got.Purpose != enums.PaymentPurposeRenewal {
		t.Fatalf("unexpected purpose filter %v", got.Purpose)
	}
	if got.UserID == nil || *got.UserID != userID {
		t.Fatalf("unexpected user filter %v", got.UserID)
	}
}

func TestAdminSetUserRoleRejectsUnknownRole(t *testing.T) {
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/users/"+id+"/role", strings.NewReader(`{"role":"superuser"}`))
	req = addRouteParam(req, "userId", id)
	resp := httptest.NewRecorder()
	AdminSetUserRole(&testAdminService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminGateErrorsPassThrough(t *testing.T) {
	svc := &testAdminService{
		approveFn: func(ctx context.Context, gemID uuid.UUID) (*gems.GemDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
		},
	}
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/gems/"+id+"/approve", nil)
	req = addRouteParam(req, "gemId", id)
	resp := httptest.NewRecorder()
	AdminApproveGem(svc, testLogger())(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestAdminRejectRequiresReason(t *testing.T) {
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/gems/"+id+"/reject", strings.NewReader(`{}`))
	req = addRouteParam(req, "gemId", id)
	resp := httptest.NewRecorder()
	AdminRejectGem(&testAdminService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminRejectForwardsReason(t *testing.T) {
	var got string
	svc := &testAdminService{
		rejectFn: func(ctx context.Context, gemID uuid.UUID, reason string) (*gems.GemDTO, error) {
			got = reason
			return &gems.GemDTO{ID: gemID}, nil
		},
	}
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/gems/"+id+"/reject", strings.NewReader(`{"reason":"Photos missing"}`))
	req = addRouteParam(req, "gemId", id)
	resp := httptest.NewRecorder()
	AdminRejectGem(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if got != "Photos missing" {
		t.Fatalf("unexpected reason %q", got)
	}
}
