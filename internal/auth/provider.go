// Package auth holds the client's authentication state: the identity decoded
// from the stored session token and whether the one-time restore has run.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/session"
	"github.com/nfrund/weatherdash/internal/token"
)

var (
	// ErrInvalidToken is returned by Login when the token cannot be decoded.
	// The identity is cleared and nothing is persisted.
	ErrInvalidToken = errors.New("login token could not be decoded")
	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("auth provider is closed")
)

// State is a point-in-time view of the provider.
type State struct {
	User    *domain.User
	Loading bool
}

// Authenticated reports whether a user is present.
func (s State) Authenticated() bool {
	return s.User != nil
}

// Provider owns the current identity for one client. Build it with
// NewProvider, call Init once, and Close it when the client goes away.
type Provider struct {
	store session.Store

	mu       sync.RWMutex
	user     *domain.User
	loading  bool
	closed   bool
	initOnce sync.Once
	initErr  error

	nextSub     int
	subscribers map[int]func(State)
}

// NewProvider creates a provider over store. It starts in the loading state.
func NewProvider(store session.Store) *Provider {
	return &Provider{
		store:       store,
		loading:     true,
		subscribers: make(map[int]func(State)),
	}
}

// Init restores the session from the store: read the token, decode it, set
// or clear the user, then leave the loading state. Only the first call does
// any work; later calls return the first result.
func (p *Provider) Init(ctx context.Context) error {
	p.initOnce.Do(func() {
		p.initErr = p.restore(ctx)
	})
	return p.initErr
}

func (p *Provider) restore(ctx context.Context) error {
	raw, err := p.store.Get(ctx, session.TokenKey)
	var readErr error
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		readErr = fmt.Errorf("restore session: %w", err)
		slog.Warn("Could not read stored session token", "error", err)
	}

	var user *domain.User
	if raw != "" {
		user, err = token.Decode(raw)
		if err != nil {
			slog.Warn("Stored session token could not be decoded", "error", err)
			user = nil
		}
	}

	p.mu.Lock()
	p.user = user
	p.loading = false
	p.mu.Unlock()
	p.notify()
	return readErr
}

// Login decodes raw and, on success, makes it the current session.
func (p *Provider) Login(ctx context.Context, raw string) error {
	if p.isClosed() {
		return ErrClosed
	}

	user, err := token.Decode(raw)
	if err != nil {
		slog.Warn("Login token could not be decoded", "error", err)
		p.setUser(nil)
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	p.setUser(user)
	if err := p.store.Set(ctx, session.TokenKey, raw); err != nil {
		return fmt.Errorf("persist session token: %w", err)
	}
	return nil
}

// Logout clears the identity and removes the stored token. It is purely
// local; the backend is not told.
func (p *Provider) Logout(ctx context.Context) error {
	if p.isClosed() {
		return ErrClosed
	}

	p.setUser(nil)
	if err := p.store.Remove(ctx, session.TokenKey); err != nil {
		return fmt.Errorf("remove session token: %w", err)
	}
	return nil
}

// User returns the current identity, if any.
func (p *Provider) User() (*domain.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user, p.user != nil
}

// Loading reports whether Init has not completed yet.
func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// State returns a snapshot of the provider.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return State{User: p.user, Loading: p.loading}
}

// Token returns the raw stored session token, or "" when there is none.
func (p *Provider) Token(ctx context.Context) string {
	return session.Token(ctx, p.store)
}

// Subscribe registers fn to be called after every state change. The returned
// function removes the subscription.
func (p *Provider) Subscribe(fn func(State)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	p.subscribers[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

// Close drops all subscriptions. Further Login/Logout calls fail with ErrClosed.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.subscribers = make(map[int]func(State))
}

func (p *Provider) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *Provider) setUser(u *domain.User) {
	p.mu.Lock()
	p.user = u
	p.mu.Unlock()
	p.notify()
}

func (p *Provider) notify() {
	p.mu.RLock()
	state := State{User: p.user, Loading: p.loading}
	subs := make([]func(State), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		subs = append(subs, fn)
	}
	p.mu.RUnlock()

	for _, fn := range subs {
		fn(state)
	}
}
