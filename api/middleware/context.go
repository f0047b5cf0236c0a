package middleware

import (
	"context"

	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
	ctxViewer contextKey = "viewer"
)

// UserIDFromContext returns the authenticated user id as a string, or "".
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// RoleFromContext returns the token role claim. Display only; authorization
// uses ViewerFromContext.
func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// ViewerFromContext returns the profile-backed viewer resolved for this
// request. Anonymous when no viewer was resolved.
func ViewerFromContext(ctx context.Context) visibility.Viewer {
	if ctx == nil {
		return visibility.Viewer{}
	}
	if v, ok := ctx.Value(ctxViewer).(visibility.Viewer); ok {
		return v
	}
	return visibility.Viewer{}
}

// WithViewer injects a resolved viewer.
func WithViewer(ctx context.Context, viewer visibility.Viewer) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxViewer, viewer)
}
