package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/snapshot"
)

const snapshotVersion = 1

// persistedCart is the stored shape. Total is derived on restore and never
// stored.
type persistedCart struct {
	Version int        `json:"version"`
	Items   []LineItem `json:"items"`
}

// Store holds the session's cart. Every mutation is one critical section that
// computes the next State, swaps it in and saves the snapshot.
type Store struct {
	mu      sync.Mutex
	state   State
	persist snapshot.Store
	key     string
	logg    *logger.Logger
}

// NewStore restores the cart saved under key. A missing or unreadable
// snapshot yields an empty cart.
func NewStore(ctx context.Context, persist snapshot.Store, key string, logg *logger.Logger) (*Store, error) {
	if persist == nil {
		return nil, fmt.Errorf("snapshot store required")
	}
	if key == "" {
		return nil, fmt.Errorf("cart snapshot key required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &Store{persist: persist, key: key, logg: logg}
	s.state = s.restore(ctx)
	return s, nil
}

func (s *Store) restore(ctx context.Context) State {
	logCtx := s.logg.WithField(ctx, "snapshot_key", s.key)
	var saved persistedCart
	if err := snapshot.LoadJSON(ctx, s.persist, s.key, &saved); err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			s.logg.Warn(s.logg.WithError(logCtx, err), "cart snapshot unreadable, starting empty")
		}
		return emptyState()
	}

	items := make([]LineItem, 0, len(saved.Items))
	seen := make(map[uuid.UUID]struct{}, len(saved.Items))
	repaired := 0
	for _, item := range saved.Items {
		_, dup := seen[item.ProductID]
		if dup || item.ProductID == uuid.Nil || item.StockCeiling < 1 || item.Quantity < 1 || item.UnitPrice.IsNegative() {
			repaired++
			continue
		}
		if item.Quantity > item.StockCeiling {
			item.Quantity = item.StockCeiling
			repaired++
		}
		seen[item.ProductID] = struct{}{}
		items = append(items, item)
	}
	if repaired > 0 {
		s.logg.Warn(s.logg.WithField(logCtx, "repaired_lines", repaired), "cart snapshot had invalid lines")
	}
	return newState(items)
}

// Snapshot returns the current state. Callers may keep it; it is never
// mutated afterwards.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddItem adds one unit of p, or inserts it with quantity 1. At the stock
// ceiling the call changes nothing.
func (s *Store) AddItem(ctx context.Context, p Product) State {
	return s.apply(ctx, "cart.add_item", func(st State) (State, bool) { return addItem(st, p) })
}

// DecreaseItem removes one unit and drops the line when it reaches zero.
func (s *Store) DecreaseItem(ctx context.Context, productID uuid.UUID) State {
	return s.apply(ctx, "cart.decrease_item", func(st State) (State, bool) { return decreaseItem(st, productID) })
}

// RemoveItem drops the line regardless of quantity.
func (s *Store) RemoveItem(ctx context.Context, productID uuid.UUID) State {
	return s.apply(ctx, "cart.remove_item", func(st State) (State, bool) { return removeItem(st, productID) })
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) State {
	return s.apply(ctx, "cart.clear", clearItems)
}

// RemoveSubmitted takes the quantities in submitted out of the cart.
func (s *Store) RemoveSubmitted(ctx context.Context, submitted State) State {
	return s.apply(ctx, "cart.remove_submitted", func(st State) (State, bool) { return removeSubmitted(st, submitted) })
}

func (s *Store) apply(ctx context.Context, op string, reduce func(State) (State, bool)) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changed := reduce(s.state)
	if !changed {
		return s.state
	}
	s.state = next
	s.save(ctx, op)
	return next
}

// save runs under mu so snapshots land in mutation order. A failed save is
// logged; the in-memory state stays authoritative.
func (s *Store) save(ctx context.Context, op string) {
	err := snapshot.SaveJSON(ctx, s.persist, s.key, persistedCart{Version: snapshotVersion, Items: s.state.Items})
	if err == nil {
		return
	}
	logCtx := s.logg.WithError(s.logg.WithFields(ctx, map[string]any{
		"snapshot_key": s.key,
		"op":           op,
	}), err)
	s.logg.Warn(logCtx, "cart snapshot save failed")
}
