package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/api/responses"
	pkgAuth "github.com/hiddengems/hiddengems-backend/pkg/auth"
	"github.com/hiddengems/hiddengems-backend/pkg/auth/session"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

// ViewerResolver loads the caller's profile-backed identity.
type ViewerResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (visibility.Viewer, error)
}

// Auth validates a bearer token, checks its session and resolves the viewer
// from the profile row.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, resolver ViewerResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			ctx, err := authenticate(r.Context(), cfg, verifier, resolver, logg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth resolves the viewer when a valid bearer token is present and
// otherwise continues as anonymous. Only session lookup failures abort.
func OptionalAuth(cfg config.JWTConfig, verifier session.AccessSessionChecker, resolver ViewerResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := authenticate(r.Context(), cfg, verifier, resolver, logg, token)
			if err != nil {
				if pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
					next.ServeHTTP(w, r)
					return
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(ctx context.Context, cfg config.JWTConfig, verifier session.AccessSessionChecker, resolver ViewerResolver, logg *logger.Logger, token string) (context.Context, error) {
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	if verifier != nil {
		ok, err := verifier.HasSession(ctx, claims.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "validate session")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
		}
	}

	viewer := visibility.Viewer{ID: claims.UserID, Role: claims.Role}
	if resolver != nil {
		viewer, err = resolver.Resolve(ctx, claims.UserID)
		if err != nil {
			return nil, err
		}
	}

	ctx = context.WithValue(ctx, ctxUserID, claims.UserID.String())
	ctx = context.WithValue(ctx, ctxRole, string(claims.Role))
	ctx = pkgAuth.WithUserID(ctx, claims.UserID)
	ctx = WithViewer(ctx, viewer)

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"user_id":    claims.UserID.String(),
			"actor_role": string(viewer.Role),
		})
	}
	return ctx, nil
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// QueryToken lifts a ?token= query parameter into the Authorization header
// when none is present. Browsers cannot set headers on websocket upgrades.
func QueryToken() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearerToken(r) == "" {
				if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
					r.Header.Set("Authorization", "Bearer "+token)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
