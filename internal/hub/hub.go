// Package hub maintains live, role-scoped views over the entity store. Each
// subscription re-composes its full view whenever a record matching its
// query, or a record joined into it, changes.
package hub

import (
	"context"
	"sync"
	"time"

	"rentalcore/internal/core"
	"rentalcore/internal/geocode"
	"rentalcore/pkg/domain"
)

// Gauges receives hub occupancy. *core.PrometheusMetricsRecorder satisfies it.
type Gauges interface {
	SetSubscriptions(n int)
	SetDependencies(n int)
}

type noopGauges struct{}

func (noopGauges) SetSubscriptions(int) {}
func (noopGauges) SetDependencies(int)  {}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option customises a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l core.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithGauges reports subscription and dependency counts.
func WithGauges(g Gauges) Option {
	return func(h *Hub) {
		if g != nil {
			h.gauges = g
		}
	}
}

// WithGeocoder enables locations on property details.
func WithGeocoder(g geocode.Geocoder) Option {
	return func(h *Hub) { h.geocoder = g }
}

// WithClock overrides the composition timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// Default bounds for re-reading a view after a failed refresh.
const (
	DefaultRetryMin = 500 * time.Millisecond
	DefaultRetryMax = 30 * time.Second
)

// WithRetryBackoff bounds the delay before a view whose refresh failed is
// read again. The delay doubles from min up to max.
func WithRetryBackoff(minDelay, maxDelay time.Duration) Option {
	return func(h *Hub) {
		if minDelay > 0 {
			h.retryMin = minDelay
		}
		h.retryMax = max(maxDelay, h.retryMin)
	}
}

// Hub fans committed store changes out to live subscriptions.
type Hub struct {
	store    domain.PersistentStore
	logger   core.Logger
	gauges   Gauges
	geocoder geocode.Geocoder
	now      func() time.Time
	retryMin time.Duration
	retryMax time.Duration

	mu      sync.Mutex
	nextID  uint64
	version uint64
	subs    map[uint64]*Subscription
	index   map[depKey]map[uint64]*Subscription
	closed  bool

	unwatch func()
}

// New attaches a hub to the store's change feed.
func New(store domain.PersistentStore, opts ...Option) *Hub {
	h := &Hub{
		store:    store,
		logger:   noopLogger{},
		gauges:   noopGauges{},
		now:      func() time.Time { return time.Now().UTC() },
		retryMin: DefaultRetryMin,
		retryMax: DefaultRetryMax,
		subs:     make(map[uint64]*Subscription),
		index:    make(map[depKey]map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.unwatch = store.Watch(h.onCommit)
	return h
}

// Subscribe opens a live view. The first snapshot is delivered as soon as it
// is composed; the subscription ends on Cancel, on ctx cancellation or when
// the hub closes.
func (h *Hub) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, domain.Unavailable("hub", errHubClosed)
	}
	h.nextID++
	sub := newSubscription(h, h.nextID, q)
	h.subs[sub.id] = sub
	n := len(h.subs)
	h.mu.Unlock()

	h.gauges.SetSubscriptions(n)
	h.logger.Debug("hub subscription opened", "subscription", sub.id, "query", q.String())
	sub.markDirty()
	go sub.run(ctx)
	return sub, nil
}

// Stats reports current occupancy.
type Stats struct {
	Subscriptions int
	Dependencies  int
}

// Stats returns the number of open subscriptions and tracked joined records.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Subscriptions: len(h.subs), Dependencies: len(h.index)}
}

// Close detaches from the store and cancels every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	h.unwatch()
	for _, s := range subs {
		s.Cancel()
	}
}

// onCommit runs under the store's write lock. It only marks affected
// subscriptions dirty; composition happens on each subscription's goroutine.
func (h *Hub) onCommit(changes []domain.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version++
	for _, c := range changes {
		for _, s := range h.subs {
			if s.query.touches(c) {
				s.markDirty()
			}
		}
		for _, s := range h.index[depKey{c.Entity, c.EntityID()}] {
			s.markDirty()
		}
	}
}

func (h *Hub) currentVersion() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// track swaps the subscription's dependency set. It reports false when a
// commit landed after version, in which case the caller must recompose.
func (h *Hub) track(s *Subscription, deps map[depKey]struct{}, version uint64) bool {
	h.mu.Lock()
	if _, open := h.subs[s.id]; !open {
		h.mu.Unlock()
		return true
	}
	h.releaseLocked(s)
	for k := range deps {
		set, ok := h.index[k]
		if !ok {
			set = make(map[uint64]*Subscription)
			h.index[k] = set
		}
		set[s.id] = s
	}
	s.deps = deps
	fresh := h.version == version
	n := len(h.index)
	h.mu.Unlock()
	h.gauges.SetDependencies(n)
	return fresh
}

func (h *Hub) releaseLocked(s *Subscription) {
	for k := range s.deps {
		set := h.index[k]
		delete(set, s.id)
		if len(set) == 0 {
			delete(h.index, k)
		}
	}
	s.deps = nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s.id)
	h.releaseLocked(s)
	subs, deps := len(h.subs), len(h.index)
	h.mu.Unlock()
	h.gauges.SetSubscriptions(subs)
	h.gauges.SetDependencies(deps)
	h.logger.Debug("hub subscription closed", "subscription", s.id)
}

// compose reads a consistent store view and builds the snapshot for q.
func (h *Hub) compose(ctx context.Context, q Query) (Snapshot, map[depKey]struct{}, error) {
	var snap Snapshot
	var deps map[depKey]struct{}
	err := h.store.View(ctx, func(view domain.TransactionView) error {
		snap, deps = compose(view, q)
		return nil
	})
	if err != nil {
		return Snapshot{}, nil, err
	}
	snap.ComposedAt = h.now()
	return snap, deps, nil
}

// Fetch composes q once without opening a subscription.
func (h *Hub) Fetch(ctx context.Context, q Query) (Snapshot, error) {
	if err := q.Validate(); err != nil {
		return Snapshot{}, err
	}
	snap, _, err := h.compose(ctx, q)
	if err != nil {
		if domain.KindOf(err) == "" && ctx.Err() == nil {
			err = domain.Unavailable("store", err)
		}
		return Snapshot{}, err
	}
	return snap, nil
}

// nextRetry doubles prev within the configured bounds.
func (h *Hub) nextRetry(prev time.Duration) time.Duration {
	if prev <= 0 {
		return h.retryMin
	}
	return min(2*prev, h.retryMax)
}
