package core

import (
	"context"

	"rentalcore/pkg/domain"
)

// ToggleState reports the membership produced by ToggleShortlist.
type ToggleState string

// Toggle outcomes.
const (
	ToggleAdded   ToggleState = "added"
	ToggleRemoved ToggleState = "removed"
)

// ToggleShortlist adds the property to the tenant's shortlist when absent and
// removes it when present. Membership is resolved inside the write
// transaction, so interleaved toggles alternate rather than duplicate.
// Adding requires a listed property; removal is always allowed.
func (s *Service) ToggleShortlist(ctx context.Context, tenantID, propertyID string) (ToggleState, Result, error) {
	var state ToggleState
	var res Result
	err := s.run(ctx, "toggle_shortlist", func(ctx context.Context) (outcome, error) {
		var touched string
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := requireRole(tx, tenantID, domain.RoleTenant); err != nil {
				return err
			}
			existing := tx.Snapshot().QueryShortlists(domain.Where(domain.FieldTenantID, tenantID).And(domain.FieldPropertyID, propertyID))
			if len(existing) > 0 {
				for _, sl := range existing {
					if err := tx.DeleteShortlist(sl.ID); err != nil {
						return err
					}
				}
				touched = existing[0].ID
				state = ToggleRemoved
				return nil
			}
			property, ok := tx.FindProperty(propertyID)
			if !ok {
				return domain.NotFound(EntityProperty, propertyID)
			}
			if !property.IsListed {
				return domain.NotListed(propertyID)
			}
			created, err := tx.CreateShortlist(Shortlist{PropertyID: propertyID, TenantID: tenantID})
			if err != nil {
				return err
			}
			touched = created.ID
			state = ToggleAdded
			return nil
		})
		out := outcome{entityID: touched, actor: tenantID}
		switch state {
		case ToggleAdded:
			out.action = ActionCreate
		case ToggleRemoved:
			out.action = ActionDelete
		}
		return out, err
	})
	if err != nil {
		return "", res, err
	}
	return state, res, nil
}

// IsShortlisted reports whether the tenant currently shortlists the property.
func (s *Service) IsShortlisted(tenantID, propertyID string) bool {
	return len(s.store.QueryShortlists(domain.Where(domain.FieldTenantID, tenantID).And(domain.FieldPropertyID, propertyID))) > 0
}
