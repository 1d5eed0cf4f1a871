package roleview

import (
	"context"
	"strings"
	"sync"

	"rentalcore/internal/core"
	"rentalcore/internal/hub"
	"rentalcore/pkg/domain"
)

// MinLandlordSearch is the shortest text a landlord search runs for.
const MinLandlordSearch = 3

// Composer scopes views and actions to one session. It holds no persisted
// state and is rebuilt whenever the session changes.
type Composer struct {
	session domain.Session
	svc     *core.Service
	hub     *hub.Hub

	mu     sync.Mutex
	subs   map[*hub.Subscription]struct{}
	closed bool
}

// New builds a composer for a signed-in session.
func New(session domain.Session, svc *core.Service, h *hub.Hub) (*Composer, error) {
	if !session.Valid() {
		return nil, domain.Forbidden(domain.EntityUser, session.UserID, "no signed-in session")
	}
	return &Composer{session: session, svc: svc, hub: h, subs: make(map[*hub.Subscription]struct{})}, nil
}

// Session returns the session the composer was built for.
func (c *Composer) Session() domain.Session { return c.session }

// Can reports whether the session's role permits the action.
func (c *Composer) Can(a Action) bool {
	return roleActions[c.session.Role][a]
}

func (c *Composer) require(a Action, entity domain.EntityType, id string) error {
	if !c.Can(a) {
		return domain.Forbidden(entity, id, "a "+string(c.session.Role)+" may not "+strings.ReplaceAll(string(a), "_", " "))
	}
	return nil
}

// Open subscribes to q on behalf of the session. The viewer is always the
// session; queries outside the role matrix fail with Forbidden.
func (c *Composer) Open(ctx context.Context, q hub.Query) (*hub.Subscription, error) {
	q.Viewer = c.session
	if err := permits(c.session, q); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.Forbidden(q.Entity, "", "session has ended")
	}
	c.mu.Unlock()

	sub, err := c.hub.Subscribe(ctx, q)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Cancel()
		return nil, domain.Forbidden(q.Entity, "", "session has ended")
	}
	c.subs[sub] = struct{}{}
	c.mu.Unlock()
	go func() {
		<-sub.Done()
		c.mu.Lock()
		delete(c.subs, sub)
		c.mu.Unlock()
	}()
	return sub, nil
}

// OpenView opens a named view.
func (c *Composer) OpenView(ctx context.Context, v View, propertyID string) (*hub.Subscription, error) {
	q, err := QueryFor(c.session, v, propertyID)
	if err != nil {
		return nil, err
	}
	return c.Open(ctx, q)
}

// MyProperties opens the landlord's own property list, listed or not.
func (c *Composer) MyProperties(ctx context.Context) (*hub.Subscription, error) {
	return c.OpenView(ctx, ViewMyProperties, "")
}

// PropertyRequests opens the requests a landlord received for one property.
func (c *Composer) PropertyRequests(ctx context.Context, propertyID string) (*hub.Subscription, error) {
	return c.OpenView(ctx, ViewPropertyRequests, propertyID)
}

// Listings opens the tenant browse view.
func (c *Composer) Listings(ctx context.Context) (*hub.Subscription, error) {
	return c.OpenView(ctx, ViewListings, "")
}

// MyRequests opens the tenant's own requests.
func (c *Composer) MyRequests(ctx context.Context) (*hub.Subscription, error) {
	return c.OpenView(ctx, ViewMyRequests, "")
}

// Shortlist opens the tenant's shortlist.
func (c *Composer) Shortlist(ctx context.Context) (*hub.Subscription, error) {
	return c.OpenView(ctx, ViewShortlist, "")
}

// Active returns the number of subscriptions still open through the composer.
func (c *Composer) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close cancels every subscription opened through the composer. Later
// Open calls fail.
func (c *Composer) Close() {
	c.mu.Lock()
	c.closed = true
	subs := make([]*hub.Subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}

// Detail returns the property screen for the session.
func (c *Composer) Detail(ctx context.Context, propertyID string) (hub.Detail, error) {
	return c.hub.Detail(ctx, propertyID, c.session)
}

// Search runs a one-off listing search. Tenants search their live browse
// snapshot with SearchListings instead; this path serves landlords looking
// at the market, and returns nothing for text shorter than MinLandlordSearch.
func (c *Composer) Search(ctx context.Context, text string) ([]hub.PropertyView, error) {
	text = strings.TrimSpace(text)
	if c.session.Role == domain.RoleLandlord && len([]rune(text)) < MinLandlordSearch {
		return []hub.PropertyView{}, nil
	}
	snap, err := c.hub.Fetch(ctx, hub.Query{
		Entity: domain.EntityProperty,
		Filter: domain.Where(domain.FieldIsListed, true),
		Viewer: c.session,
	})
	if err != nil {
		return nil, err
	}
	return MarkOwnership(SearchListings(snap.Properties, text), c.session.UserID), nil
}
