package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

type signInBody struct {
	Token string `json:"token" validate:"required"`
	Note  string `json:"note" validate:"max=3"`
}

func TestDecodeJSONBody(t *testing.T) {
	var body signInBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"abc"}`))
	require.NoError(t, DecodeJSONBody(req, &body))
	require.Equal(t, "abc", body.Token)

	cases := map[string]string{
		"unknown field": `{"token":"abc","extra":1}`,
		"malformed":     `{"token":`,
		"missing":       `{}`,
		"too long":      `{"token":"abc","note":"abcd"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
			err := DecodeJSONBody(req, &signInBody{})
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	err := DecodeJSONBody(req, &signInBody{})
	details := pkgerrors.As(err).Details().(map[string]string)
	require.Equal(t, "is required", details["token"])
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("orderId", value)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "orderId")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = ParseUUIDParam(withParam("nope"), "orderId")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseUUIDParam(withParam(uuid.Nil.String()), "orderId")
	require.Error(t, err)
}

func TestParseStatusFilter(t *testing.T) {
	status, err := ParseStatusFilter(httptest.NewRequest(http.MethodGet, "/?status=completed", nil), "status")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCompleted, *status)

	status, err = ParseStatusFilter(httptest.NewRequest(http.MethodGet, "/", nil), "status")
	require.NoError(t, err)
	require.Nil(t, status)

	_, err = ParseStatusFilter(httptest.NewRequest(http.MethodGet, "/?status=shipped", nil), "status")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	require.True(t, ok)
	require.Equal(t, "abc.def", token)

	token, ok = BearerToken("bearer   xyz ")
	require.True(t, ok)
	require.Equal(t, "xyz", token)

	for _, header := range []string{"", "Basic abc", "Bearer ", "abc"} {
		_, ok := BearerToken(header)
		require.False(t, ok, header)
	}
}
