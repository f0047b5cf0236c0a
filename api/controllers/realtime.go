package controllers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/hiddengems/hiddengems-backend/api/responses"
	"github.com/hiddengems/hiddengems-backend/internal/realtime"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
)

// RealtimeConnect upgrades an authenticated request to the notification
// websocket. The upgrader writes its own error response on failure.
func RealtimeConnect(hub *realtime.Hub, upgrader *websocket.Upgrader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil || upgrader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "realtime unavailable"))
			return
		}

		viewer, err := requireViewer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Detach from the request context: the socket outlives the handler.
		if err := realtime.Serve(context.WithoutCancel(r.Context()), hub, upgrader, w, r, viewer.ID); err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "websocket upgrade failed")
		}
	}
}
