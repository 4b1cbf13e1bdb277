package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type cartStore interface {
	Snapshot() cart.State
	AddItem(ctx context.Context, p cart.Product) cart.State
	DecreaseItem(ctx context.Context, productID uuid.UUID) cart.State
	RemoveItem(ctx context.Context, productID uuid.UUID) cart.State
	Clear(ctx context.Context) cart.State
}

type addItemRequest struct {
	Product cart.Product `json:"product"`
}

type cartResponse struct {
	Items     []cart.LineItem `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

func cartView(state cart.State) cartResponse {
	items := state.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	return cartResponse{Items: items, Total: state.Total, ItemCount: state.ItemCount()}
}

func GetCart(store cartStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, cartView(store.Snapshot()))
	}
}

func AddCartItem(store cartStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.Product.Price.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative"))
			return
		}
		responses.WriteSuccess(w, cartView(store.AddItem(r.Context(), req.Product)))
	}
}

func DecreaseCartItem(store cartStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartView(store.DecreaseItem(r.Context(), productID)))
	}
}

func RemoveCartItem(store cartStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartView(store.RemoveItem(r.Context(), productID)))
	}
}

func ClearCart(store cartStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, cartView(store.Clear(r.Context())))
	}
}
