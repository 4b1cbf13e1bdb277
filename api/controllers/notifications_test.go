package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/snapshot"
)

func newNotifications(t *testing.T) *notifications.Store {
	t.Helper()
	store, err := notifications.NewStore(context.Background(), snapshot.NewMemoryStore(), "notifications-store", logger.Nop())
	require.NoError(t, err)
	return store
}

func TestNotificationRoutes(t *testing.T) {
	ctx := context.Background()
	store := newNotifications(t)
	first := store.Add(ctx, uuid.New(), "order #a is being processed")
	store.Add(ctx, uuid.New(), "order #b has been completed")

	resp := httptest.NewRecorder()
	ListNotifications(store).ServeHTTP(resp, newRequest(http.MethodGet, "/", "", nil))
	var state notifications.State
	decodeData(t, resp, &state)
	require.Len(t, state.Items, 2)
	require.Equal(t, 2, state.UnreadCount)

	resp = httptest.NewRecorder()
	MarkNotificationRead(store, logger.Nop()).ServeHTTP(resp, newRequest(http.MethodPost, "/", "", map[string]string{"notificationId": first.ID.String()}))
	require.Equal(t, http.StatusOK, resp.Code)
	decodeData(t, resp, &state)
	require.Equal(t, 1, state.UnreadCount)

	resp = httptest.NewRecorder()
	MarkNotificationRead(store, logger.Nop()).ServeHTTP(resp, newRequest(http.MethodPost, "/", "", map[string]string{"notificationId": uuid.NewString()}))
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = httptest.NewRecorder()
	MarkAllNotificationsRead(store).ServeHTTP(resp, newRequest(http.MethodPost, "/", "", nil))
	decodeData(t, resp, &state)
	require.Zero(t, state.UnreadCount)

	resp = httptest.NewRecorder()
	ClearNotifications(store).ServeHTTP(resp, newRequest(http.MethodDelete, "/", "", nil))
	decodeData(t, resp, &state)
	require.Empty(t, state.Items)
	require.NotNil(t, state.Items)
}
