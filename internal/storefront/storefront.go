package storefront

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/changefeed"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type historyReader interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
}

type Params struct {
	Logger        *logger.Logger
	Session       *session.Provider
	Cart          *cart.Store
	Notifications *notifications.Store
	Feed          *changefeed.Subscriber
	Submitter     *checkout.Submitter
	Orders        historyReader
	// Closers are closed in order by Close after the feed is torn down.
	Closers []io.Closer
}

// Storefront binds one session to its cart, notifications and order-update
// feed. Signing in starts the feed for that user; switching users, signing out
// or token expiry tears it down before client state is cleared.
type Storefront struct {
	logg          *logger.Logger
	session       *session.Provider
	cart          *cart.Store
	notifications *notifications.Store
	feed          *changefeed.Subscriber
	submitter     *checkout.Submitter
	orders        historyReader
	closers       []io.Closer

	mu          sync.Mutex
	activeUser  uuid.UUID
	unsubscribe func()
	closed      bool
}

// New wires the storefront. If the session provider restored an identity the
// feed is started before New returns.
func New(ctx context.Context, params Params) (*Storefront, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Session == nil {
		return nil, fmt.Errorf("session provider required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notification store required")
	}
	if params.Feed == nil {
		return nil, fmt.Errorf("change feed subscriber required")
	}
	if params.Submitter == nil {
		return nil, fmt.Errorf("order submitter required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	s := &Storefront{
		logg:          params.Logger,
		session:       params.Session,
		cart:          params.Cart,
		notifications: params.Notifications,
		feed:          params.Feed,
		submitter:     params.Submitter,
		orders:        params.Orders,
		closers:       params.Closers,
	}
	s.unsubscribe = params.Session.OnChange(s.onSessionChange)
	if identity := params.Session.Current(); identity != nil {
		s.onSessionChange(ctx, identity)
	}
	return s, nil
}

func (s *Storefront) onSessionChange(ctx context.Context, identity *session.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if identity == nil {
		// sign-out and expiry both end here
		s.feed.Stop(ctx)
		s.clearClientState(ctx)
		s.activeUser = uuid.Nil
		return
	}
	if s.activeUser != uuid.Nil && s.activeUser != identity.UserID {
		s.feed.Stop(ctx)
		s.clearClientState(ctx)
	}
	s.activeUser = identity.UserID
	// a failed subscription is logged by the subscriber; the session stays usable
	_ = s.feed.Start(ctx, identity.UserID)
}

func (s *Storefront) clearClientState(ctx context.Context) {
	s.notifications.Clear(ctx)
	s.cart.Clear(ctx)
}

func (s *Storefront) SignIn(ctx context.Context, token string) (session.Identity, error) {
	return s.session.SignIn(ctx, token)
}

// SignOut ends the session, which stops the feed, then clears notifications
// and the cart.
func (s *Storefront) SignOut(ctx context.Context) {
	s.session.SignOut(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearClientState(ctx)
}

// Identity returns the signed-in identity or nil. An expired identity is
// signed out first.
func (s *Storefront) Identity() *session.Identity {
	s.session.ExpireStale(context.Background())
	return s.session.Current()
}

// Resubscribe retries the feed for the current identity after a failed
// establishment.
func (s *Storefront) Resubscribe(ctx context.Context) error {
	identity, err := s.requireIdentity()
	if err != nil {
		return err
	}
	return s.feed.Start(ctx, identity.UserID)
}

func (s *Storefront) Cart() *cart.Store { return s.cart }
func (s *Storefront) Notifications() *notifications.Store { return s.notifications }
func (s *Storefront) Feed() *changefeed.Subscriber { return s.feed }
func (s *Storefront) FeedState() enums.FeedState { return s.feed.State() }

// Checkout submits the current cart for the signed-in user.
func (s *Storefront) Checkout(ctx context.Context, buyer checkout.BuyerInfo) (*checkout.Receipt, error) {
	identity, err := s.requireIdentity()
	if err != nil {
		return nil, err
	}
	return s.submitter.Submit(ctx, identity.UserID, s.cart.Snapshot(), buyer)
}

// ResumeCheckout writes the current cart's lines to an order header left by a
// partial submission.
func (s *Storefront) ResumeCheckout(ctx context.Context, orderID uuid.UUID) (*checkout.Receipt, error) {
	identity, err := s.requireIdentity()
	if err != nil {
		return nil, err
	}
	return s.submitter.Resume(ctx, identity.UserID, orderID, s.cart.Snapshot())
}

// History lists the signed-in user's orders, newest first.
func (s *Storefront) History(ctx context.Context) ([]models.Order, error) {
	identity, err := s.requireIdentity()
	if err != nil {
		return nil, err
	}
	return s.orders.ListForUser(ctx, identity.UserID)
}

func (s *Storefront) requireIdentity() (*session.Identity, error) {
	identity := s.Identity()
	if identity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in required")
	}
	return identity, nil
}

// Close detaches from the session, stops the feed and closes the configured
// closers. Client state is kept so a restart can restore it.
func (s *Storefront) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.unsubscribe()
	s.feed.Stop(ctx)

	err := s.session.Close()
	for _, closer := range s.closers {
		if closer == nil {
			continue
		}
		err = multierr.Append(err, closer.Close())
	}
	if err != nil {
		s.logg.Error(ctx, "storefront shutdown", err)
	}
	return err
}
