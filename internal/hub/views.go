package hub

import (
	"fmt"
	"time"

	"rentalcore/pkg/domain"
)

// Query selects a role-scoped live result set. Viewer decides which party
// a request view joins against and which properties are marked as owned.
type Query struct {
	Entity domain.EntityType
	Filter domain.Filter
	Viewer domain.Session
}

func (q Query) String() string {
	return fmt.Sprintf("%s[%s] as %s", q.Entity, q.Filter, q.Viewer.UserID)
}

// Validate checks the entity and filter fields.
func (q Query) Validate() error {
	return q.Filter.Validate(q.Entity)
}

func (q Query) matches(v any) bool {
	rec, ok := v.(domain.Indexed)
	if !ok {
		return false
	}
	return q.Filter.Matches(rec)
}

// touches reports whether the change can alter the base result set.
func (q Query) touches(c domain.Change) bool {
	if c.Entity != q.Entity {
		return false
	}
	return q.matches(c.Before) || q.matches(c.After)
}

// PropertySummary is the joined, display-ready form of a referenced property.
type PropertySummary struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Address  string   `json:"address"`
	Price    float64  `json:"price"`
	Images   []string `json:"images"`
	IsListed bool     `json:"isListed"`
	Missing  bool     `json:"missing,omitempty"`
}

// UserSummary is the joined, display-ready form of a referenced user.
type UserSummary struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"displayName"`
	Email       string      `json:"email"`
	Role        domain.Role `json:"role,omitempty"`
	Missing     bool        `json:"missing,omitempty"`
}

// PropertyView is a property with its landlord joined in.
type PropertyView struct {
	Property domain.Property `json:"property"`
	Landlord UserSummary     `json:"landlord"`
	IsOwner  bool            `json:"isOwner"`
}

// RequestView is a request with the property and the other party joined in.
type RequestView struct {
	Request      domain.Request  `json:"request"`
	Property     PropertySummary `json:"property"`
	Counterparty UserSummary     `json:"counterparty"`
}

// ShortlistView is a shortlist entry with its property joined in.
type ShortlistView struct {
	Shortlist domain.Shortlist `json:"shortlist"`
	Property  PropertySummary  `json:"property"`
}

// Snapshot is the complete composed view at one point in time. Only the
// slice matching Query.Entity is populated. When Stale is set the content is
// the last view composed successfully and Err holds the upstream failure.
type Snapshot struct {
	Query      Query           `json:"-"`
	Seq        uint64          `json:"seq"`
	Properties []PropertyView  `json:"properties,omitempty"`
	Requests   []RequestView   `json:"requests,omitempty"`
	Shortlists []ShortlistView `json:"shortlists,omitempty"`
	Stale      bool            `json:"stale,omitempty"`
	Notice     string          `json:"notice,omitempty"`
	Err        error           `json:"-"`
	ComposedAt time.Time       `json:"composedAt"`
}

// Len returns the number of rows in the populated view.
func (s Snapshot) Len() int {
	return len(s.Properties) + len(s.Requests) + len(s.Shortlists)
}

type depKey struct {
	entity domain.EntityType
	id     string
}

// compose runs the base query and resolves every join through one resolver,
// returning the view and the joined records it depends on.
func compose(view domain.TransactionView, q Query) (Snapshot, map[depKey]struct{}) {
	r := newResolver(view)
	snap := Snapshot{Query: q}
	switch q.Entity {
	case domain.EntityProperty:
		props := view.QueryProperties(q.Filter)
		snap.Properties = make([]PropertyView, 0, len(props))
		for _, p := range props {
			snap.Properties = append(snap.Properties, PropertyView{
				Property: p,
				Landlord: r.user(p.LandlordID),
				IsOwner:  q.Viewer.UserID != "" && q.Viewer.UserID == p.LandlordID,
			})
		}
	case domain.EntityRequest:
		reqs := view.QueryRequests(q.Filter)
		snap.Requests = make([]RequestView, 0, len(reqs))
		for _, req := range reqs {
			snap.Requests = append(snap.Requests, RequestView{
				Request:      req,
				Property:     r.property(req.PropertyID),
				Counterparty: r.user(counterpartyOf(req, q.Viewer)),
			})
		}
	case domain.EntityShortlist:
		sls := view.QueryShortlists(q.Filter)
		snap.Shortlists = make([]ShortlistView, 0, len(sls))
		for _, sl := range sls {
			snap.Shortlists = append(snap.Shortlists, ShortlistView{
				Shortlist: sl,
				Property:  r.property(sl.PropertyID),
			})
		}
	}
	return snap, r.deps
}

// counterpartyOf picks the tenant for a landlord viewer and the landlord otherwise.
func counterpartyOf(req domain.Request, viewer domain.Session) string {
	if viewer.Role == domain.RoleLandlord || (viewer.UserID != "" && viewer.UserID == req.LandlordID) {
		return req.TenantID
	}
	return req.LandlordID
}
