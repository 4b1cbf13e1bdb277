package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/snapshot"
)

type fakeStorage struct {
	headers     []models.Order
	lineCalls   int
	lines       map[uuid.UUID][]orders.NewLine
	createOrder func(input orders.NewOrder) error
	createLines func(orderID uuid.UUID, lines []orders.NewLine) error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{lines: map[uuid.UUID][]orders.NewLine{}}
}

func (f *fakeStorage) CreateOrder(_ context.Context, input orders.NewOrder) (*models.Order, error) {
	if f.createOrder != nil {
		if err := f.createOrder(input); err != nil {
			return nil, err
		}
	}
	order := models.Order{
		ID:           uuid.New(),
		UserID:       input.UserID,
		BuyerName:    input.BuyerName,
		BuyerPhone:   input.BuyerPhone,
		BuyerAddress: input.BuyerAddress,
		TotalAmount:  input.Total.Round(2),
		Status:       enums.OrderStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	f.headers = append(f.headers, order)
	return &order, nil
}

func (f *fakeStorage) CreateOrderLines(_ context.Context, orderID uuid.UUID, lines []orders.NewLine) error {
	f.lineCalls++
	if f.createLines != nil {
		if err := f.createLines(orderID, lines); err != nil {
			return err
		}
	}
	f.lines[orderID] = lines
	return nil
}

func (f *fakeStorage) FindByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	for _, header := range f.headers {
		if header.ID == orderID {
			order := header
			for _, line := range f.lines[orderID] {
				order.Items = append(order.Items, models.OrderItem{OrderID: orderID, ProductID: line.ProductID, Quantity: line.Quantity, Price: line.Price})
			}
			return &order, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func filledCart(t *testing.T) *cart.Store {
	t.Helper()
	ctx := context.Background()
	store, err := cart.NewStore(ctx, snapshot.NewMemoryStore(), "shopping-cart", logger.Nop())
	require.NoError(t, err)
	a := cart.Product{ID: uuid.New(), Name: "A", Price: decimal.NewFromInt(10), Stock: 5}
	b := cart.Product{ID: uuid.New(), Name: "B", Price: decimal.NewFromInt(5), Stock: 5}
	store.AddItem(ctx, a)
	store.AddItem(ctx, a)
	store.AddItem(ctx, b)
	return store
}

var buyer = BuyerInfo{Name: "Ada Lovelace", Phone: "555-0100", Address: "1 Main St"}

func TestSubmitSuccessClearsCart(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	cartStore := filledCart(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewCheckoutMetrics(reg)
	sub, err := NewSubmitter(storage, cartStore, logger.Nop(), m)
	require.NoError(t, err)

	userID := uuid.New()
	receipt, err := sub.Submit(ctx, userID, cartStore.Snapshot(), buyer)
	require.NoError(t, err)
	require.True(t, receipt.Total.Equal(decimal.NewFromInt(25)))
	require.Equal(t, 3, receipt.ItemCount)
	require.Equal(t, buyer, receipt.Buyer)

	require.Len(t, storage.headers, 1)
	require.Equal(t, userID, storage.headers[0].UserID)
	lines := storage.lines[receipt.OrderID]
	require.Len(t, lines, 2)
	require.Equal(t, 2, lines[0].Quantity)
	require.True(t, lines[0].Price.Equal(decimal.NewFromInt(10)))

	require.True(t, cartStore.Snapshot().IsEmpty())
	expected := `
# HELP storefront_checkout_submissions_total Order submissions by outcome.
# TYPE storefront_checkout_submissions_total counter
storefront_checkout_submissions_total{outcome="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "storefront_checkout_submissions_total"))
}

func TestSubmitKeepsItemsAddedDuringSubmission(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	cartStore := filledCart(t)
	submitted := cartStore.Snapshot()
	first := submitted.Items[0]
	late := cart.Product{ID: uuid.New(), Name: "C", Price: decimal.NewFromInt(7), Stock: 2}
	storage.createLines = func(uuid.UUID, []orders.NewLine) error {
		cartStore.AddItem(ctx, cart.Product{ID: first.ProductID, Name: first.Name, Price: first.UnitPrice, Stock: first.StockCeiling})
		cartStore.AddItem(ctx, late)
		return nil
	}
	sub, err := NewSubmitter(storage, cartStore, logger.Nop(), nil)
	require.NoError(t, err)

	_, err = sub.Submit(ctx, uuid.New(), submitted, buyer)
	require.NoError(t, err)

	remaining := cartStore.Snapshot()
	require.Len(t, remaining.Items, 2)
	require.Equal(t, first.ProductID, remaining.Items[0].ProductID)
	require.Equal(t, 1, remaining.Items[0].Quantity)
	require.Equal(t, late.ID, remaining.Items[1].ProductID)
	require.True(t, remaining.Total.Equal(decimal.NewFromInt(17)))
}

func TestSubmitPartialOrderKeepsCart(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	storage.createLines = func(uuid.UUID, []orders.NewLine) error { return errors.New("connection reset") }
	cartStore := filledCart(t)
	sub, err := NewSubmitter(storage, cartStore, logger.Nop(), nil)
	require.NoError(t, err)

	receipt, err := sub.Submit(ctx, uuid.New(), cartStore.Snapshot(), buyer)
	require.Nil(t, receipt)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePartialOrder))

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, storage.headers[0].ID.String(), details["order_id"])

	require.Len(t, storage.headers, 1, "a single orphaned header is the only side effect")
	require.Empty(t, storage.lines)
	require.Equal(t, 3, cartStore.Snapshot().ItemCount(), "cart is not cleared")
}

func TestSubmitStorageErrorKeepsCart(t *testing.T) {
	storage := newFakeStorage()
	storage.createOrder = func(orders.NewOrder) error { return errors.New("db unavailable") }
	cartStore := filledCart(t)
	sub, err := NewSubmitter(storage, cartStore, logger.Nop(), nil)
	require.NoError(t, err)

	_, err = sub.Submit(context.Background(), uuid.New(), cartStore.Snapshot(), buyer)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorage))
	require.Zero(t, storage.lineCalls)
	require.False(t, cartStore.Snapshot().IsEmpty())
}

func TestSubmitValidationWritesNothing(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	cartStore := filledCart(t)
	sub, err := NewSubmitter(storage, cartStore, logger.Nop(), nil)
	require.NoError(t, err)

	empty, err := cart.NewStore(ctx, snapshot.NewMemoryStore(), "empty", logger.Nop())
	require.NoError(t, err)

	cases := []struct {
		name   string
		userID uuid.UUID
		state  cart.State
		buyer  BuyerInfo
	}{
		{name: "empty cart", userID: uuid.New(), state: empty.Snapshot(), buyer: buyer},
		{name: "no user", userID: uuid.Nil, state: cartStore.Snapshot(), buyer: buyer},
		{name: "blank name", userID: uuid.New(), state: cartStore.Snapshot(), buyer: BuyerInfo{Name: "  ", Phone: "1", Address: "x"}},
		{name: "missing address", userID: uuid.New(), state: cartStore.Snapshot(), buyer: BuyerInfo{Name: "a", Phone: "1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sub.Submit(ctx, tc.userID, tc.state, tc.buyer)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
	require.Empty(t, storage.headers)
}

func TestResumeCompletesPartialOrder(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	fail := true
	storage.createLines = func(uuid.UUID, []orders.NewLine) error {
		if fail {
			return errors.New("timeout")
		}
		return nil
	}
	cartStore := filledCart(t)
	sub, err := NewSubmitter(storage, cartStore, logger.Nop(), nil)
	require.NoError(t, err)

	userID := uuid.New()
	_, err = sub.Submit(ctx, userID, cartStore.Snapshot(), buyer)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePartialOrder))
	orderID := storage.headers[0].ID

	_, err = sub.Resume(ctx, uuid.New(), orderID, cartStore.Snapshot())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "another user's header is invisible")

	fail = false
	receipt, err := sub.Resume(ctx, userID, orderID, cartStore.Snapshot())
	require.NoError(t, err)
	require.Equal(t, orderID, receipt.OrderID)
	require.Len(t, storage.headers, 1, "resume never creates a header")
	require.Len(t, storage.lines[orderID], 2)
	require.True(t, cartStore.Snapshot().IsEmpty())
}

func TestResumeRejectsChangedCartAndCompletedOrders(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	storage.createLines = func(uuid.UUID, []orders.NewLine) error { return errors.New("down") }
	cartStore := filledCart(t)
	sub, err := NewSubmitter(storage, cartStore, logger.Nop(), nil)
	require.NoError(t, err)

	userID := uuid.New()
	_, err = sub.Submit(ctx, userID, cartStore.Snapshot(), buyer)
	require.Error(t, err)
	orderID := storage.headers[0].ID

	cartStore.AddItem(ctx, cart.Product{ID: uuid.New(), Name: "C", Price: decimal.NewFromInt(1), Stock: 1})
	_, err = sub.Resume(ctx, userID, orderID, cartStore.Snapshot())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	storage.headers[0].Status = enums.OrderStatusCancelled
	_, err = sub.Resume(ctx, userID, orderID, cartStore.Snapshot())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestNewSubmitterValidation(t *testing.T) {
	cartStore := filledCart(t)
	_, err := NewSubmitter(nil, cartStore, logger.Nop(), nil)
	require.Error(t, err)
	_, err = NewSubmitter(newFakeStorage(), nil, logger.Nop(), nil)
	require.Error(t, err)
	_, err = NewSubmitter(newFakeStorage(), cartStore, nil, nil)
	require.Error(t, err)
}
