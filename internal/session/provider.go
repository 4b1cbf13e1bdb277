package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/snapshot"
)

// Identity is the signed-in user.
type Identity struct {
	UserID    uuid.UUID        `json:"userId"`
	Email     string           `json:"email,omitempty"`
	Role      enums.MemberRole `json:"role"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// Listener observes identity changes. nil means signed out or expired. Listeners run
// synchronously in registration order and must not call SignIn or SignOut.
type Listener func(ctx context.Context, identity *Identity)

type persistedSession struct {
	Version int    `json:"version"`
	Token   string `json:"token"`
}

// Provider owns the session identity and notifies listeners when it changes.
type Provider struct {
	jwt     config.JWTConfig
	persist snapshot.Store
	key     string
	logg    *logger.Logger
	now     func() time.Time

	// changeMu serializes SignIn/SignOut/expiry with their listener fan-out
	// so listeners see transitions in order. It also guards expiry.
	changeMu sync.Mutex
	expiry   *time.Timer

	mu        sync.RWMutex
	current   *Identity
	listeners map[int]Listener
	order     []int
	nextID    int
}

// NewProvider restores a persisted token. An expired or invalid token is
// discarded and the provider starts signed out.
func NewProvider(ctx context.Context, jwtCfg config.JWTConfig, persist snapshot.Store, key string, logg *logger.Logger) (*Provider, error) {
	if jwtCfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	if persist == nil {
		return nil, fmt.Errorf("snapshot store required")
	}
	if key == "" {
		return nil, fmt.Errorf("session snapshot key required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	p := &Provider{
		jwt:       jwtCfg,
		persist:   persist,
		key:       key,
		logg:      logg,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	p.restore(ctx)
	return p, nil
}

func (p *Provider) restore(ctx context.Context) {
	logCtx := p.logg.WithField(ctx, "snapshot_key", p.key)
	var saved persistedSession
	if err := snapshot.LoadJSON(ctx, p.persist, p.key, &saved); err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			p.logg.Warn(p.logg.WithError(logCtx, err), "session snapshot unreadable")
		}
		return
	}
	identity, err := p.parse(saved.Token)
	if err != nil {
		p.logg.Warn(p.logg.WithError(logCtx, err), "persisted session discarded")
		if delErr := p.persist.Delete(ctx, p.key); delErr != nil {
			p.logg.Warn(p.logg.WithError(logCtx, delErr), "session snapshot delete failed")
		}
		return
	}
	p.current = identity
	p.armExpiry(identity)
	p.logg.Info(p.logg.WithUserID(logCtx, identity.UserID.String()), "session restored")
}

// armExpiry schedules the sign-out of identity at its expiry. Callers hold
// changeMu or own p exclusively.
func (p *Provider) armExpiry(identity *Identity) {
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	if identity == nil || identity.ExpiresAt.IsZero() {
		return
	}
	userID, expiresAt := identity.UserID, identity.ExpiresAt
	p.expiry = time.AfterFunc(expiresAt.Sub(p.now()), func() {
		p.expire(context.Background(), userID, expiresAt)
	})
}

// expire signs out userID if it is still the identity that expires at
// expiresAt. A newer sign-in makes it a no-op.
func (p *Provider) expire(ctx context.Context, userID uuid.UUID, expiresAt time.Time) {
	p.changeMu.Lock()
	defer p.changeMu.Unlock()

	p.mu.Lock()
	current := p.current
	if current == nil || current.UserID != userID || !current.ExpiresAt.Equal(expiresAt) {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.mu.Unlock()

	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	logCtx := p.logg.WithUserID(ctx, userID.String())
	if err := p.persist.Delete(ctx, p.key); err != nil {
		p.logg.Warn(p.logg.WithError(logCtx, err), "session snapshot delete failed")
	}
	p.logg.Info(logCtx, "session expired")
	p.notify(ctx, nil)
}

// ExpireStale runs the expiry sign-out now if the current identity has
// expired. It reports whether a session was ended.
func (p *Provider) ExpireStale(ctx context.Context) bool {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()
	if current == nil || current.ExpiresAt.IsZero() || p.now().Before(current.ExpiresAt) {
		return false
	}
	p.expire(ctx, current.UserID, current.ExpiresAt)
	return true
}

// Close stops the expiry timer. The persisted session is kept.
func (p *Provider) Close() error {
	p.changeMu.Lock()
	defer p.changeMu.Unlock()
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	return nil
}

func (p *Provider) parse(token string) (*Identity, error) {
	claims, err := auth.ParseAccessToken(p.jwt, token)
	if err != nil {
		return nil, err
	}
	identity := &Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return identity, nil
}

// Current returns a copy of the identity, or nil when signed out or expired.
func (p *Provider) Current() *Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	if !p.current.ExpiresAt.IsZero() && !p.now().Before(p.current.ExpiresAt) {
		return nil
	}
	identity := *p.current
	return &identity
}

// OnChange registers l and returns a function that removes it.
func (p *Provider) OnChange(l Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	p.order = append(p.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners, id)
			for i, candidate := range p.order {
				if candidate == id {
					p.order = append(p.order[:i], p.order[i+1:]...)
					break
				}
			}
		})
	}
}

// SignIn validates token, persists it and notifies listeners when the user
// changed.
func (p *Provider) SignIn(ctx context.Context, token string) (Identity, error) {
	identity, err := p.parse(token)
	if err != nil {
		return Identity{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid session token")
	}

	p.changeMu.Lock()
	defer p.changeMu.Unlock()

	logCtx := p.logg.WithUserID(ctx, identity.UserID.String())
	if err := snapshot.SaveJSON(ctx, p.persist, p.key, persistedSession{Version: 1, Token: token}); err != nil {
		p.logg.Warn(p.logg.WithError(logCtx, err), "session snapshot save failed")
	}

	p.mu.Lock()
	previous := p.current
	p.current = identity
	p.mu.Unlock()
	p.armExpiry(identity)

	p.logg.Info(logCtx, "session signed in")
	if previous == nil || previous.UserID != identity.UserID {
		p.notify(ctx, identity)
	}
	return *identity, nil
}

// SignOut clears the identity and its persisted token. Signing out while
// signed out does nothing.
func (p *Provider) SignOut(ctx context.Context) {
	p.changeMu.Lock()
	defer p.changeMu.Unlock()

	p.mu.Lock()
	previous := p.current
	p.current = nil
	p.mu.Unlock()
	p.armExpiry(nil)

	if err := p.persist.Delete(ctx, p.key); err != nil {
		p.logg.Warn(p.logg.WithError(ctx, err), "session snapshot delete failed")
	}
	if previous == nil {
		return
	}
	p.logg.Info(p.logg.WithUserID(ctx, previous.UserID.String()), "session signed out")
	p.notify(ctx, nil)
}

func (p *Provider) notify(ctx context.Context, identity *Identity) {
	p.mu.RLock()
	listeners := make([]Listener, 0, len(p.order))
	for _, id := range p.order {
		listeners = append(listeners, p.listeners[id])
	}
	p.mu.RUnlock()

	for _, l := range listeners {
		var arg *Identity
		if identity != nil {
			copied := *identity
			arg = &copied
		}
		l(ctx, arg)
	}
}
