package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiddengems/hiddengems-backend/internal/notifications"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
)

type testNotificationsService struct {
	listFn        func(ctx context.Context, userID uuid.UUID, params notifications.ListParams) (*notifications.ListResult, error)
	unreadFn      func(ctx context.Context, userID uuid.UUID) (int64, error)
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID) (*notifications.NotificationDTO, error)
	markAllReadFn func(ctx context.Context, userID uuid.UUID) (int64, error)
	deleteFn      func(ctx context.Context, userID, notificationID uuid.UUID) error
}

func (s *testNotificationsService) List(ctx context.Context, userID uuid.UUID, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.unreadFn != nil {
		return s.unreadFn(ctx, userID)
	}
	return 0, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) (*notifications.NotificationDTO, error) {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, userID, notificationID)
	}
	return &notifications.NotificationDTO{ID: notificationID, IsRead: true}, nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, userID)
	}
	return 0, nil
}

func (s *testNotificationsService) Delete(ctx context.Context, userID, notificationID uuid.UUID) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID, notificationID)
	}
	return nil
}

func (s *testNotificationsService) Deliver(ctx context.Context, rows []models.Notification) error {
	return nil
}

func serveInbox(t *testing.T, handler http.HandlerFunc, method, target string, role enums.Role, notificationID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if role != "" {
		req, _ = asViewer(req, role)
	}
	if notificationID != "" {
		req = addRouteParam(req, "notificationId", notificationID)
	}
	resp := httptest.NewRecorder()
	handler(resp, req)
	return resp
}

func decodeData[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestListNotificationsPassesQueryThrough(t *testing.T) {
	var gotParams notifications.ListParams
	var gotUser uuid.UUID
	svc := &testNotificationsService{
		listFn: func(ctx context.Context, userID uuid.UUID, params notifications.ListParams) (*notifications.ListResult, error) {
			gotUser, gotParams = userID, params
			return &notifications.ListResult{Items: []notifications.NotificationDTO{}, UnreadCount: 7}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/notifications?limit=5&cursor=abc&unreadOnly=true", nil)
	req, viewer := asViewer(req, enums.RoleVisitor)
	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, viewer.ID, gotUser)
	assert.Equal(t, notifications.ListParams{Limit: 5, Cursor: "abc", UnreadOnly: true}, gotParams)
	assert.EqualValues(t, 7, decodeData[notifications.ListResult](t, resp).UnreadCount)
}

func TestListNotificationsRejectsBadQuery(t *testing.T) {
	for _, target := range []string{
		"/api/notifications?limit=0",
		"/api/notifications?limit=500",
		"/api/notifications?unreadOnly=sometimes",
	} {
		resp := serveInbox(t, ListNotifications(&testNotificationsService{}, testLogger()), http.MethodGet, target, enums.RoleVisitor, "")
		assert.Equal(t, http.StatusBadRequest, resp.Code, target)
	}
}

func TestInboxRequiresViewer(t *testing.T) {
	svc := &testNotificationsService{}
	handlers := map[string]http.HandlerFunc{
		"list":     ListNotifications(svc, testLogger()),
		"unread":   UnreadNotificationCount(svc, testLogger()),
		"readAll":  MarkAllNotificationsRead(svc, testLogger()),
		"markRead": MarkNotificationRead(svc, testLogger()),
	}
	for name, handler := range handlers {
		resp := serveInbox(t, handler, http.MethodGet, "/api/notifications", "", uuid.NewString())
		assert.Equal(t, http.StatusUnauthorized, resp.Code, name)
	}
}

func TestInboxWithoutService(t *testing.T) {
	resp := serveInbox(t, ListNotifications(nil, testLogger()), http.MethodGet, "/api/notifications", enums.RoleVisitor, "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestMarkNotificationRead(t *testing.T) {
	notificationID := uuid.New()
	var got uuid.UUID
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, userID, nid uuid.UUID) (*notifications.NotificationDTO, error) {
			got = nid
			return &notifications.NotificationDTO{ID: nid, IsRead: true}, nil
		},
	}
	resp := serveInbox(t, MarkNotificationRead(svc, testLogger()), http.MethodPost,
		"/api/notifications/"+notificationID.String()+"/read", enums.RoleOwner, notificationID.String())

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, notificationID, got)
	assert.True(t, decodeData[notifications.NotificationDTO](t, resp).IsRead)
}

func TestMarkNotificationReadErrors(t *testing.T) {
	resp := serveInbox(t, MarkNotificationRead(&testNotificationsService{}, testLogger()), http.MethodPost,
		"/api/notifications/invalid/read", enums.RoleOwner, "invalid")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	notOwned := &testNotificationsService{
		markReadFn: func(ctx context.Context, userID, nid uuid.UUID) (*notifications.NotificationDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}
	id := uuid.NewString()
	resp = serveInbox(t, MarkNotificationRead(notOwned, testLogger()), http.MethodPost,
		"/api/notifications/"+id+"/read", enums.RoleOwner, id)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeNotFound), decodeError(t, resp).Error.Code)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	svc := &testNotificationsService{
		markAllReadFn: func(ctx context.Context, userID uuid.UUID) (int64, error) { return 3, nil },
	}
	resp := serveInbox(t, MarkAllNotificationsRead(svc, testLogger()), http.MethodPost, "/api/notifications/read-all", enums.RoleOwner, "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.EqualValues(t, 3, decodeData[map[string]int64](t, resp)["updated"])
}

func TestUnreadNotificationCount(t *testing.T) {
	svc := &testNotificationsService{
		unreadFn: func(ctx context.Context, userID uuid.UUID) (int64, error) { return 42, nil },
	}
	resp := serveInbox(t, UnreadNotificationCount(svc, testLogger()), http.MethodGet, "/api/notifications/unread-count", enums.RoleVisitor, "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.EqualValues(t, 42, decodeData[map[string]int64](t, resp)["unreadCount"])
}

func TestDeleteNotification(t *testing.T) {
	var deleted uuid.UUID
	svc := &testNotificationsService{
		deleteFn: func(ctx context.Context, userID, nid uuid.UUID) error {
			deleted = nid
			return nil
		},
	}
	id := uuid.New()
	resp := serveInbox(t, DeleteNotification(svc, testLogger()), http.MethodDelete, "/api/notifications/"+id.String(), enums.RoleVisitor, id.String())

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, id, deleted)
	assert.True(t, decodeData[map[string]bool](t, resp)["deleted"])
}
