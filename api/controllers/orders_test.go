package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type testHistoryService struct {
	historyFn func(ctx context.Context) ([]models.Order, error)
}

func (s *testHistoryService) History(ctx context.Context) ([]models.Order, error) {
	return s.historyFn(ctx)
}

type testAdminOrdersService struct {
	listAllFn      func(ctx context.Context, params orders.ListParams) (*orders.OrderList, error)
	updateStatusFn func(ctx context.Context, input orders.UpdateStatusInput) (*models.Order, error)
}

func (s *testAdminOrdersService) ListAll(ctx context.Context, params orders.ListParams) (*orders.OrderList, error) {
	return s.listAllFn(ctx, params)
}

func (s *testAdminOrdersService) UpdateStatus(ctx context.Context, input orders.UpdateStatusInput) (*models.Order, error) {
	return s.updateStatusFn(ctx, input)
}

func TestOrderHistory(t *testing.T) {
	orderID := uuid.New()
	svc := &testHistoryService{historyFn: func(context.Context) ([]models.Order, error) {
		return []models.Order{{
			ID:          orderID,
			Status:      enums.OrderStatusPending,
			TotalAmount: decimal.NewFromInt(10),
			Items:       []models.OrderItem{{ID: uuid.New(), ProductID: uuid.New(), Quantity: 2, Price: decimal.NewFromInt(5)}},
		}}, nil
	}}
	resp := httptest.NewRecorder()
	OrderHistory(svc, logger.Nop()).ServeHTTP(resp, newRequest(http.MethodGet, "/api/v1/orders", "", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	var list []orders.OrderDTO
	decodeData(t, resp, &list)
	require.Len(t, list, 1)
	require.Equal(t, orderID, list[0].ID)
	require.Len(t, list[0].Lines, 1)

	svc.historyFn = func(context.Context) ([]models.Order, error) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in required")
	}
	resp = httptest.NewRecorder()
	OrderHistory(svc, logger.Nop()).ServeHTTP(resp, newRequest(http.MethodGet, "/", "", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAdminListOrdersFilter(t *testing.T) {
	var got orders.ListParams
	svc := &testAdminOrdersService{listAllFn: func(_ context.Context, params orders.ListParams) (*orders.OrderList, error) {
		got = params
		return &orders.OrderList{NextCursor: "next"}, nil
	}}
	resp := httptest.NewRecorder()
	AdminListOrders(svc, logger.Nop()).ServeHTTP(resp, newRequest(http.MethodGet, "/?status=processing&limit=10&cursor=abc", "", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, got.Status)
	require.Equal(t, enums.OrderStatusProcessing, *got.Status)
	require.Equal(t, 10, got.Limit)
	require.Equal(t, "abc", got.Cursor)

	var list orders.OrderListDTO
	decodeData(t, resp, &list)
	require.Empty(t, list.Orders)
	require.Equal(t, "next", list.NextCursor)

	for _, query := range []string{"/?status=lost", "/?limit=ten"} {
		resp = httptest.NewRecorder()
		AdminListOrders(svc, logger.Nop()).ServeHTTP(resp, newRequest(http.MethodGet, query, "", nil))
		require.Equal(t, http.StatusBadRequest, resp.Code, query)
	}
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	orderID := uuid.New()
	adminID := uuid.New()
	var input orders.UpdateStatusInput
	svc := &testAdminOrdersService{updateStatusFn: func(_ context.Context, in orders.UpdateStatusInput) (*models.Order, error) {
		input = in
		if in.Status == enums.OrderStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already completed")
		}
		return &models.Order{ID: in.OrderID, Status: in.Status}, nil
	}}
	params := map[string]string{"orderId": orderID.String()}

	req := newRequest(http.MethodPatch, "/", `{"status":"completed"}`, params)
	req = req.WithContext(middleware.WithActor(req.Context(), adminID, enums.MemberRoleAdmin))
	resp := httptest.NewRecorder()
	AdminUpdateOrderStatus(svc, logger.Nop()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, orderID, input.OrderID)
	require.Equal(t, enums.OrderStatusCompleted, input.Status)
	require.Equal(t, adminID, input.ActorUserID)
	require.Equal(t, enums.MemberRoleAdmin, input.ActorRole)

	resp = httptest.NewRecorder()
	AdminUpdateOrderStatus(svc, logger.Nop()).ServeHTTP(resp, newRequest(http.MethodPatch, "/", `{"status":"pending"}`, params))
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = httptest.NewRecorder()
	AdminUpdateOrderStatus(svc, logger.Nop()).ServeHTTP(resp, newRequest(http.MethodPatch, "/", `{"status":"shipped"}`, params))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
