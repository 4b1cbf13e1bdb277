package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
)

// OrderRow is the image of an orders row carried on the change feed.
type OrderRow struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	Status       enums.OrderStatus `json:"status"`
	TotalAmount  decimal.Decimal   `json:"total_amount"`
	BuyerName    string            `json:"buyer_name"`
	BuyerPhone   string            `json:"buyer_phone"`
	BuyerAddress string            `json:"buyer_address"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// OrderUpdatedEvent carries both row images of a committed order update.
// Old is nil when the producer could not read the prior row.
type OrderUpdatedEvent struct {
	Old *OrderRow `json:"old,omitempty"`
	New OrderRow  `json:"new"`
}

// OrderRowFrom copies the columns the feed exposes.
func OrderRowFrom(order models.Order) OrderRow {
	return OrderRow{
		ID:           order.ID,
		UserID:       order.UserID,
		Status:       order.Status,
		TotalAmount:  order.TotalAmount,
		BuyerName:    order.BuyerName,
		BuyerPhone:   order.BuyerPhone,
		BuyerAddress: order.BuyerAddress,
		UpdatedAt:    order.UpdatedAt,
	}
}
