package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/internal/payments"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/mpesa"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

type testPaymentService struct {
	initiateFn func(ctx context.Context, viewer visibility.Viewer, input payments.InitiateInput) (*payments.InitiateResult, error)
	callbackFn func(ctx context.Context, raw []byte) mpesa.Ack
	pollFn     func(ctx context.Context, viewer visibility.Viewer, id uuid.UUID) (*payments.PaymentDTO, error)
}

func (s *testPaymentService) Initiate(ctx context.Context, viewer visibility.Viewer, input payments.InitiateInput) (*payments.InitiateResult, error) {
	if s.initiateFn != nil {
		return s.initiateFn(ctx, viewer, input)
	}
	return &payments.InitiateResult{}, nil
}

func (s *testPaymentService) HandleCallback(ctx context.Context, raw []byte) mpesa.Ack {
	if s.callbackFn != nil {
		return s.callbackFn(ctx, raw)
	}
	return mpesa.AckAccepted
}

func (s *testPaymentService) PollStatus(ctx context.Context, viewer visibility.Viewer, id uuid.UUID) (*payments.PaymentDTO, error) {
	if s.pollFn != nil {
		return s.pollFn(ctx, viewer, id)
	}
	return &payments.PaymentDTO{ID: id}, nil
}

func (s *testPaymentService) ListMine(ctx context.Context, viewer visibility.Viewer, page, limit int) (pagination.OffsetResult[payments.PaymentDTO], error) {
	return pagination.OffsetResult[payments.PaymentDTO]{Page: page, Limit: limit}, nil
}

func (s *testPaymentService) List(ctx context.Context, filters payments.ListFilters) (pagination.OffsetResult[payments.PaymentDTO], error) {
	return pagination.OffsetResult[payments.PaymentDTO]{}, nil
}

func (s *testPaymentService) Stats(ctx context.Context) (*payments.Stats, error) {
	return &payments.Stats{}, nil
}

func (s *testPaymentService) ReconcilePending(ctx context.Context, grace, timeout time.Duration, limit int) (payments.ReconcileSummary, error) {
	return payments.ReconcileSummary{}, nil
}

func TestPaymentCallbackAlwaysOK(t *testing.T) {
	cases := []struct {
		name string
		ack  mpesa.Ack
	}{
		{name: "accepted", ack: mpesa.AckAccepted},
		{name: "rejected", ack: mpesa.AckRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var received string
			svc := &testPaymentService{
				callbackFn: func(ctx context.Context, raw []byte) mpesa.Ack {
					received = string(raw)
					return tc.ack
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/api/payments/mpesa/callback", strings.NewReader(`{"Body":{}}`))
			resp := httptest.NewRecorder()
			PaymentCallback(svc, testLogger())(resp, req)

			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200 got %d", resp.Code)
			}
			if received != `{"Body":{}}` {
				t.Fatalf("unexpected body forwarded %q", received)
			}
			var ack mpesa.Ack
			if err := json.Unmarshal(resp.Body.Bytes(), &ack); err != nil {
				t.Fatalf("decode ack: %v", err)
			}
			if ack != tc.ack {
				t.Fatalf("expected %+v got %+v", tc.ack, ack)
			}
		})
	}
}

func TestPaymentCallbackWithoutServiceStillOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/mpesa/callback", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	PaymentCallback(nil, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPaymentInitiateSurfacesValidation(t *testing.T) {
	svc := &testPaymentService{
		initiateFn: func(ctx context.Context, viewer visibility.Viewer, input payments.InitiateInput) (*payments.InitiateResult, error) {
			if input.PhoneNumber == "" {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "Phone number is required")
			}
			return &payments.InitiateResult{}, nil
		},
	}
	body := `{"gemId":"` + uuid.NewString() + `","tier":"standard","type":"new_listing"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/initiate", strings.NewReader(body))
	req, _ = asViewer(req, enums.RoleOwner)
	resp := httptest.NewRecorder()
	PaymentInitiate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if env := decodeError(t, resp); env.Error.Message != "Phone number is required" {
		t.Fatalf("unexpected message %q", env.Error.Message)
	}
}

func TestPaymentInitiateCreated(t *testing.T) {
	paymentID := uuid.New()
	svc := &testPaymentService{
		initiateFn: func(ctx context.Context, viewer visibility.Viewer, input payments.InitiateInput) (*payments.InitiateResult, error) {
			return &payments.InitiateResult{PaymentID: paymentID, CheckoutRequestID: "ws_CO_1"}, nil
		},
	}
	body := `{"gemId":"` + uuid.NewString() + `","tier":"standard","type":"new_listing","phoneNumber":"0712345678"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/initiate", strings.NewReader(body))
	req, _ = asViewer(req, enums.RoleOwner)
	resp := httptest.NewRecorder()
	PaymentInitiate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
}

func TestPaymentStatusUpstreamIsGeneric(t *testing.T) {
	svc := &testPaymentService{
		pollFn: func(ctx context.Context, viewer visibility.Viewer, id uuid.UUID) (*payments.PaymentDTO, error) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, errors.New("db down"), "load payment")
		},
	}
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/payments/"+id.String()+"/status", nil)
	req, _ = asViewer(req, enums.RoleOwner)
	req = addRouteParam(req, "paymentId", id.String())
	resp := httptest.NewRecorder()
	PaymentStatus(svc, testLogger())(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "db down") {
		t.Fatal("internal error leaked to caller")
	}
}

func TestPaymentStatusRequiresViewer(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/payments/"+id.String()+"/status", nil)
	req = addRouteParam(req, "paymentId", id.String())
	resp := httptest.NewRecorder()
	PaymentStatus(&testPaymentService{}, testLogger())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
