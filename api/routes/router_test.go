package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hiddengems/hiddengems-backend/internal/admin"
	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/internal/payments"
	"github.com/hiddengems/hiddengems-backend/internal/users"
	pkgAuth "github.com/hiddengems/hiddengems-backend/pkg/auth"
	"github.com/hiddengems/hiddengems-backend/pkg/auth/session"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/metrics"
	"github.com/hiddengems/hiddengems-backend/pkg/mpesa"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubSessions struct{}

func (stubSessions) HasSession(ctx context.Context, accessID string) (bool, error) {
	return true, nil
}

// stubViewers resolves roles from a fixed table, standing in for the
// profile lookup.
type stubViewers struct {
	roles map[uuid.UUID]enums.Role
}

func (s stubViewers) Resolve(ctx context.Context, userID uuid.UUID) (visibility.Viewer, error) {
	role, ok := s.roles[userID]
	if !ok {
		role = enums.RoleVisitor
	}
	return visibility.Viewer{ID: userID, Role: role}, nil
}

type stubGems struct {
	gems.Service
	lastViewer visibility.Viewer
}

func (s *stubGems) List(ctx context.Context, viewer visibility.Viewer, filters gems.ListFilters) (pagination.OffsetResult[gems.GemDTO], error) {
	s.lastViewer = viewer
	return pagination.OffsetResult[gems.GemDTO]{Items: []gems.GemDTO{}}, nil
}

type stubAdmin struct {
	admin.Service
}

func (stubAdmin) ListUsers(ctx context.Context, filters admin.UserFilters) (pagination.OffsetResult[users.UserDTO], error) {
	return pagination.OffsetResult[users.UserDTO]{Items: []users.UserDTO{}}, nil
}

type stubPayments struct {
	payments.Service
	initiated int
}

func (s *stubPayments) HandleCallback(ctx context.Context, raw []byte) mpesa.Ack {
	return mpesa.AckAccepted
}

func (s *stubPayments) Initiate(ctx context.Context, viewer visibility.Viewer, input payments.InitiateInput) (*payments.InitiateResult, error) {
	s.initiated++
	return &payments.InitiateResult{}, nil
}

type memoryIdempotency struct {
	data map[string]string
}

func (m *memoryIdempotency) Get(_ context.Context, key string) (string, error) {
	return m.data[key], nil
}

func (m *memoryIdempotency) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryIdempotency) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (m *memoryIdempotency) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev", BaseURL: "http://localhost:3000"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "hiddengems-test", ExpirationMinutes: 15},
		Traffic: config.TrafficConfig{
			RatePerIP: 1,
			Burst:     2,
		},
	}
}

type testDeps struct {
	gems     *stubGems
	payments *stubPayments
	viewers  stubViewers
}

func newTestRouter(cfg *config.Config, mutate func(*Params)) (http.Handler, *testDeps) {
	deps := &testDeps{
		gems:     &stubGems{},
		payments: &stubPayments{},
		viewers:  stubViewers{roles: map[uuid.UUID]enums.Role{}},
	}
	params := Params{
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "test-routing", Output: io.Discard}),
		DB:       stubPinger{},
		Redis:    stubPinger{},
		Sessions: stubSessions{},
		Viewers:  deps.viewers,
		Metrics:  metrics.NewHTTPMetrics(prometheus.NewRegistry()),
		Gatherer: prometheus.NewRegistry(),
		Gems:     deps.gems,
		Payments: deps.payments,
		Admin:    stubAdmin{},
	}
	if mutate != nil {
		mutate(&params)
	}
	return NewRouter(params), deps
}

func buildToken(t *testing.T, cfg *config.Config, userID uuid.UUID, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	router, _ := newTestRouter(testConfig(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-HiddenGems-Env") != "dev" {
		t.Fatal("missing env header")
	}
}

func TestHealthReadyReportsDependencyFailure(t *testing.T) {
	router, _ := newTestRouter(testConfig(), func(p *Params) {
		p.Redis = stubPinger{err: fmt.Errorf("connection refused")}
	})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	router, _ := newTestRouter(testConfig(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPublicGemListAllowsAnonymous(t *testing.T) {
	router, deps := newTestRouter(testConfig(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/gems", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if deps.gems.lastViewer.ID != uuid.Nil {
		t.Fatal("expected anonymous viewer")
	}
}

func TestPublicGemListResolvesViewerWhenTokenPresent(t *testing.T) {
	cfg := testConfig()
	router, deps := newTestRouter(cfg, nil)
	userID := uuid.New()
	deps.viewers.roles[userID] = enums.RoleOwner

	req := httptest.NewRequest(http.MethodGet, "/api/gems", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, userID, enums.RoleVisitor))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if deps.gems.lastViewer.ID != userID || deps.gems.lastViewer.Role != enums.RoleOwner {
		t.Fatalf("unexpected viewer %+v", deps.gems.lastViewer)
	}
}

func TestPublicGemListIgnoresGarbageToken(t *testing.T) {
	router, _ := newTestRouter(testConfig(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/gems", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPrivateRoutesRejectMissingJWT(t *testing.T) {
	router, _ := newTestRouter(testConfig(), nil)
	for _, path := range []string{"/api/notifications", "/api/favorites", "/api/payments", "/api/traffic"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}
}

func TestAdminRoutesUseProfileRole(t *testing.T) {
	cfg := testConfig()
	router, deps := newTestRouter(cfg, nil)

	anonymous := httptest.NewRecorder()
	router.ServeHTTP(anonymous, httptest.NewRequest(http.MethodGet, "/api/admin/users", nil))
	if anonymous.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous got %d", anonymous.Code)
	}

	// Token claims admin but the profile says owner.
	ownerID := uuid.New()
	deps.viewers.roles[ownerID] = enums.RoleOwner
	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, ownerID, enums.RoleAdmin))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for owner got %d", resp.Code)
	}

	// The perimeter answers before the handler reads the body.
	req = httptest.NewRequest(http.MethodPatch, "/api/admin/users/"+uuid.NewString()+"/role", strings.NewReader(`{"role":`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, ownerID, enums.RoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for owner role change got %d", resp.Code)
	}

	adminID := uuid.New()
	deps.viewers.roles[adminID] = enums.RoleAdmin
	req = httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, adminID, enums.RoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestMpesaCallbackNeedsNoAuth(t *testing.T) {
	router, _ := newTestRouter(testConfig(), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/mpesa/callback", strings.NewReader(`{"Body":{}}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPaymentInitiateRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	store := &memoryIdempotency{data: map[string]string{}}
	router, deps := newTestRouter(cfg, func(p *Params) { p.Idem = store })
	userID := uuid.New()
	token := buildToken(t, cfg, userID, enums.RoleOwner)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/initiate", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key got %d", resp.Code)
	}
	if deps.payments.initiated != 0 {
		t.Fatal("initiate must not run without a key")
	}

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/payments/initiate", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "key-1")
		resp = httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d", i, resp.Code)
		}
	}
	if deps.payments.initiated != 1 {
		t.Fatalf("expected one initiate, got %d", deps.payments.initiated)
	}
}

func TestTrafficRecordIsRateLimited(t *testing.T) {
	router, _ := newTestRouter(testConfig(), nil)
	var last int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/traffic", strings.NewReader(`{"path":"/"}`))
		req.RemoteAddr = "203.0.113.9:1234"
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		last = resp.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}
