package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type sessionService interface {
	SignIn(ctx context.Context, token string) (session.Identity, error)
	SignOut(ctx context.Context)
	Identity() *session.Identity
	FeedState() enums.FeedState
	Resubscribe(ctx context.Context) error
}

type signInRequest struct {
	Token string `json:"token" validate:"required"`
}

type sessionResponse struct {
	SignedIn  bool             `json:"signedIn"`
	UserID    *uuid.UUID       `json:"userId,omitempty"`
	Email     string           `json:"email,omitempty"`
	Role      enums.MemberRole `json:"role,omitempty"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
	FeedState enums.FeedState  `json:"feedState"`
}

func sessionView(svc sessionService) sessionResponse {
	resp := sessionResponse{FeedState: svc.FeedState()}
	identity := svc.Identity()
	if identity == nil {
		return resp
	}
	resp.SignedIn = true
	resp.UserID = &identity.UserID
	resp.Email = identity.Email
	resp.Role = identity.Role
	resp.ExpiresAt = &identity.ExpiresAt
	return resp
}

func GetSession(svc sessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, sessionView(svc))
	}
}

// SignIn stores the token as the storefront's session. A feed that fails to
// start does not fail the sign-in; feedState reports it.
func SignIn(svc sessionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := svc.SignIn(r.Context(), req.Token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessionView(svc))
	}
}

func SignOut(svc sessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.SignOut(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}

// Resubscribe retries the order-updates feed for the signed-in user.
func Resubscribe(svc sessionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Resubscribe(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessionView(svc))
	}
}
