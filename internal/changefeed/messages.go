package changefeed

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/enums"
)

const shortIDLen = 8

// statusMessage renders the notification text for a transition into status.
// Only processing, completed and cancelled notify.
func statusMessage(orderID uuid.UUID, status enums.OrderStatus) (string, bool) {
	short := orderID.String()[:shortIDLen]
	switch status {
	case enums.OrderStatusProcessing:
		return fmt.Sprintf("order #%s is being processed", short), true
	case enums.OrderStatusCompleted:
		return fmt.Sprintf("order #%s has been completed", short), true
	case enums.OrderStatusCancelled:
		return fmt.Sprintf("order #%s has been cancelled", short), true
	default:
		return "", false
	}
}
