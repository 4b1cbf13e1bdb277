package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/notifications"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type notificationStore interface {
	Snapshot() notifications.State
	MarkRead(ctx context.Context, id uuid.UUID) (notifications.State, bool)
	MarkAllRead(ctx context.Context) notifications.State
	Clear(ctx context.Context) notifications.State
}

func notificationsView(state notifications.State) notifications.State {
	if state.Items == nil {
		state.Items = []notifications.Notification{}
	}
	return state
}

func ListNotifications(store notificationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, notificationsView(store.Snapshot()))
	}
}

func MarkNotificationRead(store notificationStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "notificationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, found := store.MarkRead(r.Context(), id)
		if !found {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found"))
			return
		}
		responses.WriteSuccess(w, notificationsView(state))
	}
}

func MarkAllNotificationsRead(store notificationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, notificationsView(store.MarkAllRead(r.Context())))
	}
}

func ClearNotifications(store notificationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, notificationsView(store.Clear(r.Context())))
	}
}
