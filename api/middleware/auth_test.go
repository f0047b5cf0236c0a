package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgAuth "github.com/hiddengems/hiddengems-backend/pkg/auth"
	"github.com/hiddengems/hiddengems-backend/pkg/auth/session"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func TestAuthRejections(t *testing.T) {
	valid := func(t *testing.T) string { return "Bearer " + mintTestToken(t, uuid.New(), enums.RoleVisitor) }
	cases := []struct {
		name     string
		header   func(t *testing.T) string
		sessions stubSessionVerifier
		resolver ViewerResolver
		want     int
	}{
		{name: "missing token", header: func(*testing.T) string { return "" }, sessions: stubSessionVerifier{ok: true}, want: http.StatusUnauthorized},
		{name: "garbage token", header: func(*testing.T) string { return "Bearer invalid" }, sessions: stubSessionVerifier{ok: true}, want: http.StatusUnauthorized},
		{name: "wrong scheme", header: func(t *testing.T) string { return "Basic " + mintTestToken(t, uuid.New(), enums.RoleVisitor) }, sessions: stubSessionVerifier{ok: true}, want: http.StatusUnauthorized},
		{name: "revoked session", header: valid, sessions: stubSessionVerifier{}, want: http.StatusUnauthorized},
		{name: "session store down", header: valid, sessions: stubSessionVerifier{err: errors.New("redis down")}, want: http.StatusInternalServerError},
		{name: "deleted profile", header: valid, sessions: stubSessionVerifier{ok: true}, resolver: stubResolver{}, want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header := tc.header(t); header != "" {
				req.Header.Set("Authorization", header)
			}
			resp := httptest.NewRecorder()
			Auth(testJWT, tc.sessions, tc.resolver, nil)(okHandler()).ServeHTTP(resp, req)
			assert.Equal(t, tc.want, resp.Code)
		})
	}
}

func TestAuthViewerRoleComesFromProfile(t *testing.T) {
	userID := uuid.New()
	// The token still claims admin but the profile was demoted.
	token := mintTestToken(t, userID, enums.RoleAdmin)
	resolver := stubResolver{viewers: map[uuid.UUID]visibility.Viewer{
		userID: {ID: userID, Role: enums.RoleOwner},
	}}

	var captured struct {
		user   string
		claim  string
		viewer visibility.Viewer
		ctxID  uuid.UUID
	}
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, resolver, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.claim = RoleFromContext(r.Context())
		captured.viewer = ViewerFromContext(r.Context())
		captured.ctxID, _ = pkgAuth.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, userID.String(), captured.user)
	assert.Equal(t, userID, captured.ctxID)
	assert.Equal(t, string(enums.RoleAdmin), captured.claim)
	assert.Equal(t, enums.RoleOwner, captured.viewer.Role)
}

func TestOptionalAuthFallsBackToAnonymous(t *testing.T) {
	var viewer visibility.Viewer
	handler := OptionalAuth(testJWT, stubSessionVerifier{ok: true}, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewer = ViewerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	for _, header := range []string{"", "Bearer expired-or-garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code, header)
		assert.Equal(t, uuid.Nil, viewer.ID, header)
	}
}

func TestOptionalAuthResolvesValidToken(t *testing.T) {
	userID := uuid.New()
	var viewer visibility.Viewer
	handler := OptionalAuth(testJWT, stubSessionVerifier{ok: true}, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewer = ViewerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, userID, enums.RoleVisitor))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, userID, viewer.ID)
}

func TestRequireRoleUsesResolvedViewer(t *testing.T) {
	handler := RequireRole(enums.RoleAdmin, nil)(okHandler())
	for role, want := range map[enums.Role]int{
		enums.RoleOwner:   http.StatusForbidden,
		enums.RoleVisitor: http.StatusForbidden,
		enums.RoleAdmin:   http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithViewer(req.Context(), visibility.Viewer{ID: uuid.New(), Role: role}))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, want, resp.Code, role)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func mintTestToken(t *testing.T, userID uuid.UUID, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testJWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    session.NewAccessID(),
	})
	require.NoError(t, err)
	return token
}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(ctx context.Context, accessID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.ok, nil
}

type stubResolver struct {
	viewers map[uuid.UUID]visibility.Viewer
}

func (s stubResolver) Resolve(ctx context.Context, userID uuid.UUID) (visibility.Viewer, error) {
	viewer, ok := s.viewers[userID]
	if !ok {
		return visibility.Viewer{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "profile not found")
	}
	return viewer, nil
}
