package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog view the cart needs when an item is added.
type Product struct {
	ID       uuid.UUID       `json:"id" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock" validate:"gte=0"`
	Category string          `json:"category"`
	ImageURL string          `json:"imageUrl"`
}

// LineItem is one product in the cart. 1 <= Quantity <= StockCeiling holds
// for every item present in a State.
type LineItem struct {
	ProductID    uuid.UUID       `json:"productId"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Quantity     int             `json:"quantity"`
	StockCeiling int             `json:"stockCeiling"`
	Category     string          `json:"category"`
	ImageRef     string          `json:"imageRef"`
}

// Subtotal is UnitPrice x Quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// State is an immutable cart value. Items keep insertion order and Total is
// always the sum of their subtotals.
type State struct {
	Items []LineItem      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// IsEmpty reports whether the cart has no items.
func (s State) IsEmpty() bool {
	return len(s.Items) == 0
}

// ItemCount is the total quantity across all lines.
func (s State) ItemCount() int {
	count := 0
	for _, item := range s.Items {
		count += item.Quantity
	}
	return count
}

// Find returns the line for productID, if present.
func (s State) Find(productID uuid.UUID) (LineItem, bool) {
	if idx := indexOf(s.Items, productID); idx >= 0 {
		return s.Items[idx], true
	}
	return LineItem{}, false
}

func emptyState() State {
	return State{Items: []LineItem{}, Total: decimal.Zero}
}

// newState is the only way a State is built, so Total cannot drift from Items.
func newState(items []LineItem) State {
	if items == nil {
		items = []LineItem{}
	}
	return State{Items: items, Total: totalOf(items)}
}

func totalOf(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func indexOf(items []LineItem, productID uuid.UUID) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// The reducers below never modify their input; each returns the next state
// and whether anything changed.

func addItem(s State, p Product) (State, bool) {
	idx := indexOf(s.Items, p.ID)
	if idx < 0 {
		if p.Stock < 1 {
			return s, false
		}
		items := make([]LineItem, len(s.Items), len(s.Items)+1)
		copy(items, s.Items)
		items = append(items, LineItem{
			ProductID:    p.ID,
			Name:         p.Name,
			UnitPrice:    p.Price,
			Quantity:     1,
			StockCeiling: p.Stock,
			Category:     p.Category,
			ImageRef:     p.ImageURL,
		})
		return newState(items), true
	}
	if s.Items[idx].Quantity >= s.Items[idx].StockCeiling {
		return s, false
	}
	items := cloneItems(s.Items)
	items[idx].Quantity++
	return newState(items), true
}

func decreaseItem(s State, productID uuid.UUID) (State, bool) {
	idx := indexOf(s.Items, productID)
	if idx < 0 {
		return s, false
	}
	if s.Items[idx].Quantity <= 1 {
		return removeAt(s, idx), true
	}
	items := cloneItems(s.Items)
	items[idx].Quantity--
	return newState(items), true
}

func removeItem(s State, productID uuid.UUID) (State, bool) {
	idx := indexOf(s.Items, productID)
	if idx < 0 {
		return s, false
	}
	return removeAt(s, idx), true
}

func clearItems(s State) (State, bool) {
	return emptyState(), !s.IsEmpty()
}

// removeSubmitted subtracts each submitted line's quantity from the matching
// line, dropping lines that reach zero. Units added after the submitted
// snapshot was taken stay in the cart.
func removeSubmitted(s State, submitted State) (State, bool) {
	if s.IsEmpty() || submitted.IsEmpty() {
		return s, false
	}
	items := make([]LineItem, 0, len(s.Items))
	changed := false
	for _, item := range s.Items {
		sent, ok := submitted.Find(item.ProductID)
		if !ok {
			items = append(items, item)
			continue
		}
		changed = true
		if item.Quantity > sent.Quantity {
			item.Quantity -= sent.Quantity
			items = append(items, item)
		}
	}
	if !changed {
		return s, false
	}
	return newState(items), true
}

func removeAt(s State, idx int) State {
	items := make([]LineItem, 0, len(s.Items)-1)
	items = append(items, s.Items[:idx]...)
	items = append(items, s.Items[idx+1:]...)
	return newState(items)
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
