package hub

import (
	"strings"

	"rentalcore/pkg/domain"
)

// Placeholders shown when joined data is blank or no longer exists.
const (
	FallbackTitle   = "Untitled Property"
	FallbackAddress = "No address provided"
	FallbackName    = "Unknown User"
	FallbackEmail   = "No email provided"
)

// resolver is the single join path for every view. It records each record it
// looks up, found or not, as a dependency of the view being composed.
type resolver struct {
	view domain.RuleView
	deps map[depKey]struct{}
}

func newResolver(view domain.RuleView) *resolver {
	return &resolver{view: view, deps: make(map[depKey]struct{})}
}

func (r *resolver) property(id string) PropertySummary {
	r.deps[depKey{domain.EntityProperty, id}] = struct{}{}
	p, ok := r.view.FindProperty(id)
	if !ok {
		return PropertySummary{ID: id, Title: FallbackTitle, Address: FallbackAddress, Images: []string{}, Missing: true}
	}
	return summarizeProperty(p)
}

func (r *resolver) user(id string) UserSummary {
	r.deps[depKey{domain.EntityUser, id}] = struct{}{}
	u, ok := r.view.FindUser(id)
	if !ok {
		return UserSummary{ID: id, DisplayName: FallbackName, Email: FallbackEmail, Missing: true}
	}
	return summarizeUser(u)
}

func summarizeProperty(p domain.Property) PropertySummary {
	out := PropertySummary{
		ID:       p.ID,
		Title:    orDefault(p.Title, FallbackTitle),
		Address:  orDefault(p.Address, FallbackAddress),
		Price:    p.Price,
		Images:   append([]string{}, p.Images...),
		IsListed: p.IsListed,
	}
	return out
}

func summarizeUser(u domain.User) UserSummary {
	return UserSummary{
		ID:          u.ID,
		DisplayName: orDefault(u.DisplayName, FallbackName),
		Email:       orDefault(u.Email, FallbackEmail),
		Role:        u.Role,
	}
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
