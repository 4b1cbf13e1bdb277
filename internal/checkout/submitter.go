package checkout

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// OrderStorage is the external storage a submission writes to.
type OrderStorage interface {
	CreateOrder(ctx context.Context, input orders.NewOrder) (*models.Order, error)
	CreateOrderLines(ctx context.Context, orderID uuid.UUID, lines []orders.NewLine) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// CartClearer takes the submitted lines out of the cart after a complete
// submission.
type CartClearer interface {
	RemoveSubmitted(ctx context.Context, submitted cart.State) cart.State
}

// BuyerInfo is the delivery contact collected at checkout.
type BuyerInfo struct {
	Name    string `json:"buyerName" validate:"required,max=200"`
	Phone   string `json:"buyerPhone" validate:"required,max=40"`
	Address string `json:"buyerAddress" validate:"required,max=500"`
}

func (b BuyerInfo) trimmed() BuyerInfo {
	return BuyerInfo{
		Name:    strings.TrimSpace(b.Name),
		Phone:   strings.TrimSpace(b.Phone),
		Address: strings.TrimSpace(b.Address),
	}
}

// Receipt is what the confirmation page shows.
type Receipt struct {
	OrderID   uuid.UUID       `json:"orderId"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
	Buyer     BuyerInfo       `json:"buyer"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Submitter turns a cart snapshot into an order header plus its lines. The
// two writes are separate: a failure between them leaves a header with no
// lines and is reported as CodePartialOrder, never compensated.
type Submitter struct {
	storage  OrderStorage
	cart     CartClearer
	validate *validator.Validate
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
}

// NewSubmitter wires a Submitter. m may be nil.
func NewSubmitter(storage OrderStorage, cartStore CartClearer, logg *logger.Logger, m *metrics.CheckoutMetrics) (*Submitter, error) {
	if storage == nil {
		return nil, fmt.Errorf("order storage required")
	}
	if cartStore == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Submitter{
		storage:  storage,
		cart:     cartStore,
		validate: newValidator(),
		logg:     logg,
		metrics:  m,
	}, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Submit writes the order header, then its lines, then removes the submitted
// quantities from the cart. Items added meanwhile stay.
// Errors carry CodeValidation (nothing written), CodeStorage (header not
// written, cart untouched) or CodePartialOrder (header written without
// lines, cart untouched, details hold order_id).
func (s *Submitter) Submit(ctx context.Context, userID uuid.UUID, snapshot cart.State, buyer BuyerInfo) (*Receipt, error) {
	buyer = buyer.trimmed()
	if err := s.precheck(userID, snapshot, buyer); err != nil {
		s.metrics.IncOutcome(metrics.OutcomeValidation)
		return nil, err
	}

	logCtx := s.logg.WithUserID(ctx, userID.String())
	header, err := s.storage.CreateOrder(logCtx, orders.NewOrder{
		UserID:       userID,
		BuyerName:    buyer.Name,
		BuyerPhone:   buyer.Phone,
		BuyerAddress: buyer.Address,
		Total:        snapshot.Total,
	})
	if err != nil {
		s.metrics.IncOutcome(metrics.OutcomeStorage)
		s.logg.Error(logCtx, "order header create failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "order could not be placed")
	}

	logCtx = s.logg.WithOrderID(logCtx, header.ID.String())
	if err := s.storage.CreateOrderLines(logCtx, header.ID, linesFrom(snapshot)); err != nil {
		s.metrics.IncOutcome(metrics.OutcomePartial)
		s.logg.Error(logCtx, "order lines create failed, header left without lines", err)
		return nil, partialOrder(header.ID, err)
	}

	s.cart.RemoveSubmitted(logCtx, snapshot)
	s.metrics.IncOutcome(metrics.OutcomeSuccess)
	s.logg.Info(logCtx, "order submitted")
	return &Receipt{
		OrderID:   header.ID,
		Total:     header.TotalAmount,
		ItemCount: snapshot.ItemCount(),
		Buyer:     buyer,
		CreatedAt: header.CreatedAt,
	}, nil
}

// Resume retries step two against an existing header from a previous
// PartialOrder outcome. It never creates a header. The snapshot must still
// total what the header recorded.
func (s *Submitter) Resume(ctx context.Context, userID, orderID uuid.UUID, snapshot cart.State) (*Receipt, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if snapshot.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, userID.String()), orderID.String())
	header, err := s.storage.FindByID(logCtx, orderID)
	if err != nil {
		return nil, err
	}
	if header.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if header.Status != enums.OrderStatusPending || len(header.Items) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is not awaiting lines")
	}
	if !header.TotalAmount.Equal(snapshot.Total.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart changed since the order was placed").
			WithDetails(map[string]any{"order_total": header.TotalAmount, "cart_total": snapshot.Total})
	}

	if err := s.storage.CreateOrderLines(logCtx, orderID, linesFrom(snapshot)); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		s.metrics.IncOutcome(metrics.OutcomePartial)
		s.logg.Error(logCtx, "order lines retry failed", err)
		return nil, partialOrder(orderID, err)
	}

	s.cart.RemoveSubmitted(logCtx, snapshot)
	s.metrics.IncOutcome(metrics.OutcomeResumed)
	s.logg.Info(logCtx, "order submission resumed")
	return &Receipt{
		OrderID:   orderID,
		Total:     header.TotalAmount,
		ItemCount: snapshot.ItemCount(),
		Buyer: BuyerInfo{
			Name:    header.BuyerName,
			Phone:   header.BuyerPhone,
			Address: header.BuyerAddress,
		},
		CreatedAt: header.CreatedAt,
	}, nil
}

func (s *Submitter) precheck(userID uuid.UUID, snapshot cart.State, buyer BuyerInfo) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "sign in to place an order")
	}
	if snapshot.IsEmpty() {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if err := s.validate.Struct(buyer); err != nil {
		details := map[string]string{}
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range errs {
				details[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "buyer details are incomplete").WithDetails(details)
	}
	return nil
}

func linesFrom(snapshot cart.State) []orders.NewLine {
	lines := make([]orders.NewLine, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		lines = append(lines, orders.NewLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.UnitPrice,
		})
	}
	return lines
}

func partialOrder(orderID uuid.UUID, cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodePartialOrder, cause, "order was created but its items were not saved").
		WithDetails(map[string]any{"order_id": orderID.String()})
}
