package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/outbox"
	"github.com/angelmondragon/storefront/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the storage side of checkout plus purchase history, order
// administration and orphan detection.
type Service interface {
	CreateOrder(ctx context.Context, input NewOrder) (*models.Order, error)
	CreateOrderLines(ctx context.Context, orderID uuid.UUID, lines []NewLine) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	ListAll(ctx context.Context, params ListParams) (*OrderList, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	FindOrphaned(ctx context.Context, grace time.Duration) ([]models.Order, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the orders service.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		logg:   logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateOrder writes a pending header. The id and createdAt are assigned on
// insert.
func (s *service) CreateOrder(ctx context.Context, input NewOrder) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Total.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total must not be negative")
	}
	order := &models.Order{
		UserID:       input.UserID,
		BuyerName:    strings.TrimSpace(input.BuyerName),
		BuyerPhone:   strings.TrimSpace(input.BuyerPhone),
		BuyerAddress: strings.TrimSpace(input.BuyerAddress),
		TotalAmount:  input.Total.Round(2),
		Status:       enums.OrderStatusPending,
	}
	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return nil, pkgerrors.Wrap(storageCode(err), err, "create order header")
	}
	s.logg.Info(s.logg.WithOrderID(ctx, created.ID.String()), "order header created")
	return created, nil
}

// CreateOrderLines writes every line for orderID or none of them. It refuses
// to add lines to a header that already has some so a retried step two can
// never duplicate a batch.
func (s *service) CreateOrderLines(ctx context.Context, orderID uuid.UUID, lines []NewLine) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order lines are required")
	}
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil || line.Quantity < 1 || line.Price.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid order line").
				WithDetails(map[string]any{"product_id": line.ProductID, "quantity": line.Quantity})
		}
		items = append(items, models.OrderItem{
			OrderID:   orderID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.Price,
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByIDForUpdate(ctx, orderID); err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order header")
		}
		existing, err := repo.CountItems(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count order lines")
		}
		if existing > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has lines")
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(storageCode(err), err, "create order lines")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":   orderID.String(),
		"line_count": len(items),
	}), "order lines created")
	return nil
}

func (s *service) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	orders, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, nil
}

func (s *service) ListAll(ctx context.Context, params ListParams) (*OrderList, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	query := ListAllQuery{
		Status: params.Status,
		Limit:  pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.ListAll(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	page, next := pagination.Page(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &OrderList{Orders: page, NextCursor: next}, nil
}

// UpdateStatus moves an order to a new status and queues an order_updated
// event with the old and new row images in the same transaction. Setting the
// current status again is a no-op and emits nothing. Terminal orders reject
// every change.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if current.Status == input.Status {
			updated = current
			return nil
		}
		if current.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already "+current.Status.String()).
				WithDetails(map[string]any{"status": current.Status})
		}

		oldRow := payloads.OrderRowFrom(*current)
		if err := repo.UpdateStatus(ctx, current.ID, input.Status, s.now()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		next, err := repo.FindByID(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		var actor *outbox.ActorRef
		if input.ActorUserID != uuid.Nil {
			actor = &outbox.ActorRef{UserID: input.ActorUserID, Role: input.ActorRole.String()}
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   next.ID,
			UserID:        next.UserID,
			Actor:         actor,
			Data: payloads.OrderUpdatedEvent{
				Old: &oldRow,
				New: payloads.OrderRowFrom(*next),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order updated")
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": updated.ID.String(),
		"status":   updated.Status,
	}), "order status updated")
	return updated, nil
}

// FindOrphaned lists pending headers older than grace that have no lines.
func (s *service) FindOrphaned(ctx context.Context, grace time.Duration) ([]models.Order, error) {
	if grace < 0 {
		grace = 0
	}
	orders, err := s.repo.FindOrphaned(ctx, s.now().Add(-grace))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find orphaned orders")
	}
	return orders, nil
}

// storageCode maps constraint failures from either driver to a typed code.
func storageCode(err error) pkgerrors.Code {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.CodeConflict
	}
	return pkgerrors.ClassifyStorage(err, pkgerrors.CodeDependency)
}
