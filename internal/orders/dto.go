package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/pagination"
)

// NewOrder is the header written by step one of a submission.
type NewOrder struct {
	UserID       uuid.UUID
	BuyerName    string
	BuyerPhone   string
	BuyerAddress string
	Total        decimal.Decimal
}

// NewLine is one order_items row written by step two.
type NewLine struct {
	ProductID uuid.UUID
	Quantity  int
	Price     decimal.Decimal
}

// UpdateStatusInput is an administration status change.
type UpdateStatusInput struct {
	OrderID     uuid.UUID
	Status      enums.OrderStatus
	ActorUserID uuid.UUID
	ActorRole   enums.MemberRole
}

// ListParams filters and pages an administration listing.
type ListParams struct {
	pagination.Params
	Status *enums.OrderStatus
}

// OrderList is one page of orders. NextCursor is empty on the last page.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

// OrderListDTO is the API shape of an OrderList.
type OrderListDTO struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// OrderLineDTO is the API shape of an order line.
type OrderLineDTO struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderDTO is the API shape of an order with its lines.
type OrderDTO struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	BuyerName    string            `json:"buyer_name"`
	BuyerPhone   string            `json:"buyer_phone"`
	BuyerAddress string            `json:"buyer_address"`
	TotalAmount  decimal.Decimal   `json:"total_amount"`
	Status       enums.OrderStatus `json:"status"`
	Lines        []OrderLineDTO    `json:"lines"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// FromModel maps a stored order into its API shape.
func FromModel(order models.Order) OrderDTO {
	lines := make([]OrderLineDTO, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, OrderLineDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return OrderDTO{
		ID:           order.ID,
		UserID:       order.UserID,
		BuyerName:    order.BuyerName,
		BuyerPhone:   order.BuyerPhone,
		BuyerAddress: order.BuyerAddress,
		TotalAmount:  order.TotalAmount,
		Status:       order.Status,
		Lines:        lines,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
}

// FromModels maps a list of stored orders.
func FromModels(orders []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(orders))
	for _, order := range orders {
		out = append(out, FromModel(order))
	}
	return out
}

// FromList maps a page of orders.
func FromList(list OrderList) OrderListDTO {
	return OrderListDTO{Orders: FromModels(list.Orders), NextCursor: list.NextCursor}
}
