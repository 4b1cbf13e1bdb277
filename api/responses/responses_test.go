package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"hello": "world"})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "world", body.Data.(map[string]any)["hello"])
}

func TestWriteErrorValidationKeepsMessageAndDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").WithDetails(map[string]string{"field": "items"})
	WriteError(context.Background(), logger.Nop(), w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)
	apiErr := decodeError(t, w)
	require.Equal(t, string(pkgerrors.CodeValidation), apiErr.Code)
	require.Equal(t, "cart is empty", apiErr.Message)
	require.False(t, apiErr.Retryable)
	require.NotNil(t, apiErr.Details)
}

func TestWriteErrorPartialOrderCarriesOrderID(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.Wrap(pkgerrors.CodePartialOrder, errors.New("timeout"), "lines failed").
		WithDetails(map[string]any{"order_id": "abc"})
	WriteError(context.Background(), logger.Nop(), w, err)

	require.Equal(t, http.StatusBadGateway, w.Code)
	apiErr := decodeError(t, w)
	require.Equal(t, string(pkgerrors.CodePartialOrder), apiErr.Code)
	require.True(t, apiErr.Retryable)
	require.Equal(t, "abc", apiErr.Details.(map[string]any)["order_id"])
}

func TestWriteErrorHidesStorageCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.Wrap(pkgerrors.CodeStorage, errors.New("pq: connection refused"), "header"))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	apiErr := decodeError(t, w)
	require.Equal(t, pkgerrors.MetadataFor(pkgerrors.CodeStorage).PublicMessage, apiErr.Message)
	require.Nil(t, apiErr.Details)
}

func TestWriteErrorDefaultsToInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), logger.Nop(), w, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	apiErr := decodeError(t, w)
	require.Equal(t, string(pkgerrors.CodeInternal), apiErr.Code)
	require.NotContains(t, apiErr.Message, "boom")
}
