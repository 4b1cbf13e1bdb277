package changefeed

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/outbox/payloads"
)

// Change is one committed update to an orders row. Old is nil when the
// producer did not supply the prior image.
type Change struct {
	Old *payloads.OrderRow
	New payloads.OrderRow
}

// Feed opens a stream of order updates scoped to one user.
type Feed interface {
	Subscribe(ctx context.Context, userID uuid.UUID, onChange func(context.Context, Change)) (Subscription, error)
}

// Subscription is a live feed. Unsubscribe blocks until no callback is
// running and is safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

// Notifier receives the notifications the subscriber derives.
type Notifier interface {
	Add(ctx context.Context, orderID uuid.UUID, message string) notifications.Notification
}

// Subscriber keeps at most one feed open for the signed-in user and turns
// order status transitions into notifications.
type Subscriber struct {
	feed    Feed
	sink    Notifier
	logg    *logger.Logger
	metrics *metrics.FeedMetrics

	// lifecycleMu serializes Start and Stop so a new feed is only opened
	// after the previous one is fully torn down.
	lifecycleMu sync.Mutex

	mu         sync.Mutex
	state      enums.FeedState
	userID     uuid.UUID
	sub        Subscription
	generation uint64
	lastStatus map[uuid.UUID]enums.OrderStatus
}

// NewSubscriber builds an unsubscribed subscriber. m may be nil.
func NewSubscriber(feed Feed, sink Notifier, logg *logger.Logger, m *metrics.FeedMetrics) (*Subscriber, error) {
	if feed == nil {
		return nil, fmt.Errorf("feed required")
	}
	if sink == nil {
		return nil, fmt.Errorf("notification sink required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &Subscriber{
		feed:    feed,
		sink:    sink,
		logg:    logg,
		metrics: m,
		state:   enums.FeedStateUnsubscribed,
	}
	m.SetState(enums.FeedStateUnsubscribed)
	return s, nil
}

// State returns the current lifecycle state.
func (s *Subscriber) State() enums.FeedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the identity the feed is scoped to, or uuid.Nil.
func (s *Subscriber) UserID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Start tears down any existing feed and opens one for userID. Starting again
// for the user that is already active does nothing. A failed subscribe leaves
// the subscriber unsubscribed and returns a CodeFeed error; no retry is
// scheduled.
func (s *Subscriber) Start(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if s.state == enums.FeedStateActive && s.userID == userID {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.stopLocked(ctx)

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state = enums.FeedStateSubscribing
	s.userID = userID
	s.lastStatus = make(map[uuid.UUID]enums.OrderStatus)
	s.mu.Unlock()
	s.metrics.SetState(enums.FeedStateSubscribing)

	logCtx := s.logg.WithUserID(ctx, userID.String())
	sub, err := s.feed.Subscribe(ctx, userID, func(cbCtx context.Context, change Change) {
		s.handle(cbCtx, gen, change)
	})
	if err != nil {
		s.mu.Lock()
		if s.generation == gen {
			s.generation++
			s.state = enums.FeedStateUnsubscribed
			s.userID = uuid.Nil
			s.lastStatus = nil
		}
		s.mu.Unlock()
		s.metrics.SetState(enums.FeedStateUnsubscribed)
		s.metrics.IncFailure()
		s.logg.Warn(s.logg.WithError(logCtx, err), "order feed unavailable")
		return pkgerrors.Wrap(pkgerrors.CodeFeed, err, "order updates unavailable")
	}

	s.mu.Lock()
	s.sub = sub
	s.state = enums.FeedStateActive
	s.mu.Unlock()
	s.metrics.SetState(enums.FeedStateActive)
	s.logg.Info(logCtx, "order feed active")
	return nil
}

// Stop tears the feed down. Calling it when nothing is active is a no-op.
func (s *Subscriber) Stop(ctx context.Context) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	s.stopLocked(ctx)
}

func (s *Subscriber) stopLocked(ctx context.Context) {
	s.mu.Lock()
	if s.state == enums.FeedStateUnsubscribed && s.sub == nil {
		s.mu.Unlock()
		return
	}
	sub := s.sub
	userID := s.userID
	s.sub = nil
	s.generation++
	s.state = enums.FeedStateUnsubscribed
	s.userID = uuid.Nil
	s.lastStatus = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	s.metrics.SetState(enums.FeedStateUnsubscribed)
	s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "order feed stopped")
}

// handle runs under mu so a teardown that bumps the generation cannot
// interleave with an append.
func (s *Subscriber) handle(ctx context.Context, gen uint64, change Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.state == enums.FeedStateUnsubscribed {
		return
	}
	orderID := change.New.ID
	if orderID == uuid.Nil {
		return
	}
	if change.New.UserID != uuid.Nil && change.New.UserID != s.userID {
		return
	}

	next := change.New.Status
	previous, known := s.lastStatus[orderID]
	if change.Old != nil {
		previous, known = change.Old.Status, true
	}
	last, seen := s.lastStatus[orderID]
	s.lastStatus[orderID] = next

	if !known {
		s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), "order update without prior status dropped")
		return
	}
	if previous == next || (seen && last == next) {
		return
	}
	msg, ok := statusMessage(orderID, next)
	if !ok {
		return
	}
	s.sink.Add(ctx, orderID, msg)
	s.metrics.IncNotification(next)
}
