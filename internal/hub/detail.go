package hub

import (
	"context"
	"errors"
	"strings"

	"rentalcore/internal/geocode"
	"rentalcore/pkg/domain"
)

// Detail is the single-property screen for one viewer.
type Detail struct {
	PropertyView
	IsShortlisted bool              `json:"isShortlisted"`
	HasRequested  bool              `json:"hasRequested"`
	Location      *geocode.Location `json:"location,omitempty"`
}

// Detail composes a property with the viewer's relationship to it. Unlisted
// properties are only visible to their owner. A geocoder failure leaves
// Location nil and never fails the call.
func (h *Hub) Detail(ctx context.Context, propertyID string, viewer domain.Session) (Detail, error) {
	var out Detail
	err := h.store.View(ctx, func(view domain.TransactionView) error {
		p, ok := view.FindProperty(propertyID)
		if !ok {
			return domain.NotFound(domain.EntityProperty, propertyID)
		}
		owner := viewer.UserID != "" && viewer.UserID == p.LandlordID
		if !p.IsListed && !owner {
			return domain.NotListed(propertyID)
		}
		r := newResolver(view)
		out.PropertyView = PropertyView{Property: p, Landlord: r.user(p.LandlordID), IsOwner: owner}
		if viewer.Role == domain.RoleTenant {
			pair := domain.Where(domain.FieldTenantID, viewer.UserID).And(domain.FieldPropertyID, propertyID)
			out.IsShortlisted = len(view.QueryShortlists(pair)) > 0
			out.HasRequested = len(view.QueryRequests(pair)) > 0
		}
		return nil
	})
	if err != nil {
		return Detail{}, err
	}
	out.Location = h.locate(ctx, out.Property.Address)
	return out, nil
}

func (h *Hub) locate(ctx context.Context, address string) *geocode.Location {
	if h.geocoder == nil || strings.TrimSpace(address) == "" {
		return nil
	}
	loc, err := h.geocoder.Resolve(ctx, address)
	if err != nil {
		if !errors.Is(err, geocode.ErrNotFound) {
			h.logger.Warn("geocode failed", "address", address, "error", err)
		}
		return nil
	}
	return &loc
}
