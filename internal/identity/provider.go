// Package identity supplies the current session to the role view layer and
// issues the bearer tokens the HTTP adapter resolves sessions from.
package identity

import (
	"context"
	"sort"
	"sync"

	"rentalcore/pkg/domain"
)

// Provider reports the current session and notifies on sign-in/sign-out.
type Provider interface {
	Current() (domain.Session, bool)
	OnChange(fn func(domain.Session, bool)) (cancel func())
}

// StaticProvider is an in-process Provider driven by explicit SignIn and
// SignOut calls.
type StaticProvider struct {
	mu        sync.Mutex
	session   domain.Session
	signedIn  bool
	nextID    int
	listeners map[int]func(domain.Session, bool)
}

// NewStaticProvider returns a signed-out provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{listeners: make(map[int]func(domain.Session, bool))}
}

// Current implements Provider.
func (p *StaticProvider) Current() (domain.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, p.signedIn
}

// SignIn replaces the current session and notifies listeners.
func (p *StaticProvider) SignIn(s domain.Session) error {
	if !s.Valid() {
		return domain.ConstraintViolation(domain.EntityUser, s.UserID, "session requires a user id and a known role")
	}
	p.set(s, true)
	return nil
}

// SignOut clears the session and notifies listeners. Signing out while
// signed out is a no-op.
func (p *StaticProvider) SignOut() {
	p.mu.Lock()
	was := p.signedIn
	p.mu.Unlock()
	if was {
		p.set(domain.Session{}, false)
	}
}

func (p *StaticProvider) set(s domain.Session, signedIn bool) {
	p.mu.Lock()
	p.session, p.signedIn = s, signedIn
	ids := make([]int, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(domain.Session, bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.listeners[id])
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(s, signedIn)
	}
}

// OnChange implements Provider. Listeners run on the goroutine that changed
// the session, after the change is visible through Current.
func (p *StaticProvider) OnChange(fn func(domain.Session, bool)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

type sessionKey struct{}

// WithSession attaches a resolved session to ctx.
func WithSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session attached by WithSession.
func FromContext(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(domain.Session)
	return s, ok
}
