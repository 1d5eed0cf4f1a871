package roleview

import (
	"sync"

	"rentalcore/internal/core"
	"rentalcore/internal/hub"
	"rentalcore/internal/identity"
	"rentalcore/pkg/domain"
)

// Binder keeps a Composer in step with an identity provider. Every session
// change closes the previous composer, cancelling its views, and builds a
// new one for the new session.
type Binder struct {
	svc      *core.Service
	hub      *hub.Hub
	onChange func(*Composer)
	logger   core.Logger

	mu      sync.Mutex
	current *Composer
	stop    func()
}

// BinderOption configures a Binder.
type BinderOption func(*Binder)

// WithBinderLogger receives sessions the provider signed in but no composer
// could be built for.
func WithBinderLogger(l core.Logger) BinderOption {
	return func(b *Binder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bind attaches to provider. onChange, when non-nil, receives each new
// composer, or nil after sign-out or a rejected session.
func Bind(provider identity.Provider, svc *core.Service, h *hub.Hub, onChange func(*Composer), opts ...BinderOption) *Binder {
	b := &Binder{svc: svc, hub: h, onChange: onChange, logger: noopLogger{}}
	for _, opt := range opts {
		opt(b)
	}
	b.stop = provider.OnChange(b.rebind)
	if s, ok := provider.Current(); ok {
		b.rebind(s, true)
	}
	return b
}

func (b *Binder) rebind(s domain.Session, signedIn bool) {
	var next *Composer
	if signedIn {
		var err error
		if next, err = New(s, b.svc, b.hub); err != nil {
			b.logger.Warn("session rejected", "user", s.UserID, "role", s.Role, "error", err)
		}
	}
	b.mu.Lock()
	prev := b.current
	b.current = next
	b.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	if b.onChange != nil {
		b.onChange(next)
	}
}

// Composer returns the composer for the current session.
func (b *Binder) Composer() (*Composer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.current != nil
}

// Close detaches from the provider and closes the current composer.
func (b *Binder) Close() {
	b.stop()
	b.mu.Lock()
	prev := b.current
	b.current = nil
	b.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
