package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/snapshot"
)

const snapshotVersion = 1

// Notification is one in-app message about an order. It references the order
// by id only.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"orderId"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// State lists notifications newest first. UnreadCount always equals the
// number of unread items.
type State struct {
	Items       []Notification `json:"items"`
	UnreadCount int            `json:"unreadCount"`
}

type persistedNotifications struct {
	Version     int            `json:"version"`
	Items       []Notification `json:"notifications"`
	UnreadCount int            `json:"unreadCount"`
}

// Store is the session's notification list.
type Store struct {
	mu      sync.Mutex
	items   []Notification
	unread  int
	persist snapshot.Store
	key     string
	logg    *logger.Logger
	now     func() time.Time
}

// NewStore restores the list saved under key.
func NewStore(ctx context.Context, persist snapshot.Store, key string, logg *logger.Logger) (*Store, error) {
	if persist == nil {
		return nil, fmt.Errorf("snapshot store required")
	}
	if key == "" {
		return nil, fmt.Errorf("notifications snapshot key required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &Store{
		persist: persist,
		key:     key,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
		items:   []Notification{},
	}
	s.restore(ctx)
	return s, nil
}

func (s *Store) restore(ctx context.Context) {
	logCtx := s.logg.WithField(ctx, "snapshot_key", s.key)
	var saved persistedNotifications
	if err := snapshot.LoadJSON(ctx, s.persist, s.key, &saved); err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			s.logg.Warn(s.logg.WithError(logCtx, err), "notifications snapshot unreadable, starting empty")
		}
		return
	}
	if saved.Items != nil {
		s.items = saved.Items
	}
	s.unread = countUnread(s.items)
	if s.unread != saved.UnreadCount {
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"stored_unread": saved.UnreadCount,
			"actual_unread": s.unread,
		}), "notifications unread count reconciled")
	}
}

func countUnread(items []Notification) int {
	n := 0
	for _, item := range items {
		if !item.Read {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the current list.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Add prepends an unread notification.
func (s *Store) Add(ctx context.Context, orderID uuid.UUID, message string) Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := Notification{
		ID:        uuid.New(),
		OrderID:   orderID,
		Message:   message,
		CreatedAt: s.now(),
	}
	items := make([]Notification, 0, len(s.items)+1)
	items = append(items, n)
	s.items = append(items, s.items...)
	s.unread++
	s.save(ctx, "notifications.add")
	return n
}

// MarkRead flips one notification to read. Repeated calls and unknown ids
// leave the count untouched. found reports whether id exists.
func (s *Store) MarkRead(ctx context.Context, id uuid.UUID) (state State, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if !s.items[i].Read {
			s.items = cloneItems(s.items)
			s.items[i].Read = true
			if s.unread > 0 {
				s.unread--
			}
			s.save(ctx, "notifications.mark_read")
		}
		return s.stateLocked(), true
	}
	return s.stateLocked(), false
}

// MarkAllRead flips every notification to read.
func (s *Store) MarkAllRead(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unread == 0 {
		return s.stateLocked()
	}
	items := cloneItems(s.items)
	for i := range items {
		items[i].Read = true
	}
	s.items = items
	s.unread = 0
	s.save(ctx, "notifications.mark_all_read")
	return s.stateLocked()
}

// Clear deletes every notification.
func (s *Store) Clear(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 && s.unread == 0 {
		return s.stateLocked()
	}
	s.items = []Notification{}
	s.unread = 0
	s.save(ctx, "notifications.clear")
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	return State{Items: cloneItems(s.items), UnreadCount: s.unread}
}

func (s *Store) save(ctx context.Context, op string) {
	err := snapshot.SaveJSON(ctx, s.persist, s.key, persistedNotifications{
		Version:     snapshotVersion,
		Items:       s.items,
		UnreadCount: s.unread,
	})
	if err == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"snapshot_key": s.key,
		"op":           op,
		"error":        err.Error(),
	}), "notifications snapshot save failed")
}

func cloneItems(items []Notification) []Notification {
	out := make([]Notification, len(items))
	copy(out, items)
	return out
}
