package controllers

import (
	"net/http"
	"strings"

	"github.com/hiddengems/hiddengems-backend/api/responses"
	"github.com/hiddengems/hiddengems-backend/api/validators"
	"github.com/hiddengems/hiddengems-backend/internal/notifications"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

// inboxAction is the body of an inbox endpoint once the caller is known.
type inboxAction func(r *http.Request, svc notifications.Service, viewer visibility.Viewer) (any, error)

// inboxHandler resolves the authenticated caller and renders whatever the
// action returns. Every inbox endpoint is scoped to the caller's own rows.
func inboxHandler(svc notifications.Service, logg *logger.Logger, action inboxAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		viewer, err := requireViewer(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		body, err := action(r, svc, viewer)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, body)
	}
}

// ListNotifications returns one keyset page of the caller's inbox, newest
// first, along with the total unread count.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(r *http.Request, svc notifications.Service, viewer visibility.Viewer) (any, error) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxFeedLimit)
		if err != nil {
			return nil, err
		}
		unreadOnly, err := validators.ParseQueryBool(r, "unreadOnly")
		if err != nil {
			return nil, err
		}
		return svc.List(r.Context(), viewer.ID, notifications.ListParams{
			Limit:      limit,
			Cursor:     strings.TrimSpace(r.URL.Query().Get("cursor")),
			UnreadOnly: unreadOnly,
		})
	})
}

func UnreadNotificationCount(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(r *http.Request, svc notifications.Service, viewer visibility.Viewer) (any, error) {
		count, err := svc.UnreadCount(r.Context(), viewer.ID)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"unreadCount": count}, nil
	})
}

// MarkNotificationRead flags one notification as read. Rows owned by someone
// else surface as NOT_FOUND from the service.
func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(r *http.Request, svc notifications.Service, viewer visibility.Viewer) (any, error) {
		id, err := parseUUIDParam(r, "notificationId")
		if err != nil {
			return nil, err
		}
		return svc.MarkRead(r.Context(), viewer.ID, id)
	})
}

func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(r *http.Request, svc notifications.Service, viewer visibility.Viewer) (any, error) {
		updated, err := svc.MarkAllRead(r.Context(), viewer.ID)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"updated": updated}, nil
	})
}

func DeleteNotification(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inboxHandler(svc, logg, func(r *http.Request, svc notifications.Service, viewer visibility.Viewer) (any, error) {
		id, err := parseUUIDParam(r, "notificationId")
		if err != nil {
			return nil, err
		}
		if err := svc.Delete(r.Context(), viewer.ID, id); err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": true}, nil
	})
}
