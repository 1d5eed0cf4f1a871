package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"rentalcore/pkg/domain"
)

var errHubClosed = errors.New("hub closed")

// Subscription is one live view. Updates delivers full snapshots; when the
// consumer falls behind only the newest snapshot is kept.
type Subscription struct {
	id    uint64
	hub   *Hub
	query Query

	updates chan Snapshot
	dirty   chan struct{}
	done    chan struct{}
	once    sync.Once

	// guarded by hub.mu
	deps map[depKey]struct{}

	mu   sync.Mutex
	last Snapshot
	good Snapshot
	seq  uint64
	have bool
}

func newSubscription(h *Hub, id uint64, q Query) *Subscription {
	return &Subscription{
		id:      id,
		hub:     h,
		query:   q,
		updates: make(chan Snapshot, 1),
		dirty:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Query returns the query the subscription was opened with.
func (s *Subscription) Query() Query { return s.query }

// Updates returns the snapshot channel. It is closed after cancellation.
func (s *Subscription) Updates() <-chan Snapshot { return s.updates }

// Done is closed once the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Latest returns the most recently published snapshot, if any.
func (s *Subscription) Latest() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.have
}

// Cancel stops further emissions and releases the joined records the view
// was tracking. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
}

func (s *Subscription) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// run owns the retry timer: a failed refresh is re-attempted with backoff
// until it succeeds, even when no further commit touches the view.
func (s *Subscription) run(ctx context.Context) {
	defer close(s.updates)
	var (
		retry   *time.Timer
		retryC  <-chan time.Time
		backoff time.Duration
	)
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.Cancel()
			return
		case <-s.dirty:
		case <-retryC:
			retryC = nil
		}
		if s.refresh(ctx) {
			backoff = 0
			if retry != nil {
				retry.Stop()
			}
			retryC = nil
			continue
		}
		backoff = s.hub.nextRetry(backoff)
		if retry == nil {
			retry = time.NewTimer(backoff)
		} else {
			retry.Reset(backoff)
		}
		retryC = retry.C
	}
}

// refresh recomposes the view. It reports false when the read failed and
// the last good view was re-emitted as stale.
func (s *Subscription) refresh(ctx context.Context) bool {
	version := s.hub.currentVersion()
	snap, deps, err := s.hub.compose(ctx, s.query)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		s.publishStale(err)
		return false
	}
	if !s.hub.track(s, deps, version) {
		s.markDirty()
	}
	s.publish(snap)
	return true
}

// publishStale re-emits the last good view flagged with the failure so an
// outage does not blank what the consumer already shows.
func (s *Subscription) publishStale(err error) {
	if domain.KindOf(err) != domain.KindUpstreamUnavailable {
		err = domain.Unavailable("store", err)
	}
	s.hub.logger.Warn("hub view refresh failed", "subscription", s.id, "query", s.query.String(), "error", err)
	s.mu.Lock()
	snap := s.good
	s.mu.Unlock()
	snap.Query = s.query
	snap.Stale = true
	snap.Err = err
	snap.Notice = domain.Notice(err)
	s.publish(snap)
}

func (s *Subscription) publish(snap Snapshot) {
	s.mu.Lock()
	s.seq++
	snap.Seq = s.seq
	s.last = snap
	s.have = true
	if !snap.Stale {
		s.good = snap
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}
