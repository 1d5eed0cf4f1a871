// Package roleview scopes live views and mutating actions to the current
// session's role.
package roleview

import (
	"rentalcore/internal/hub"
	"rentalcore/pkg/domain"
)

// View names a subscription permitted by the role matrix.
type View string

// Views by role.
const (
	ViewMyProperties     View = "my-properties"     // landlord
	ViewPropertyRequests View = "property-requests" // landlord, per property
	ViewListings         View = "listings"          // tenant
	ViewMyRequests       View = "my-requests"       // tenant
	ViewShortlist        View = "shortlist"         // tenant
)

// Action names a mutating operation.
type Action string

// Mutating actions.
const (
	ActionCreateProperty  Action = "create_property"
	ActionEditProperty    Action = "edit_property"
	ActionToggleListing   Action = "toggle_listing"
	ActionDeleteProperty  Action = "delete_property"
	ActionAddImage        Action = "add_image"
	ActionDecideRequest   Action = "decide_request"
	ActionSubmitRequest   Action = "submit_request"
	ActionWithdrawRequest Action = "withdraw_request"
	ActionToggleShortlist Action = "toggle_shortlist"
)

var roleActions = map[domain.Role]map[Action]bool{
	domain.RoleLandlord: {
		ActionCreateProperty: true,
		ActionEditProperty:   true,
		ActionToggleListing:  true,
		ActionDeleteProperty: true,
		ActionAddImage:       true,
		ActionDecideRequest:  true,
	},
	domain.RoleTenant: {
		ActionSubmitRequest:   true,
		ActionWithdrawRequest: true,
		ActionToggleShortlist: true,
	},
}

// Views returns the views the role may open.
func Views(role domain.Role) []View {
	switch role {
	case domain.RoleLandlord:
		return []View{ViewMyProperties, ViewPropertyRequests}
	case domain.RoleTenant:
		return []View{ViewListings, ViewMyRequests, ViewShortlist}
	default:
		return nil
	}
}

// QueryFor builds the query behind a named view. propertyID is only used
// by ViewPropertyRequests.
func QueryFor(s domain.Session, v View, propertyID string) (hub.Query, error) {
	q := hub.Query{Viewer: s}
	switch v {
	case ViewMyProperties:
		q.Entity, q.Filter = domain.EntityProperty, domain.Where(domain.FieldLandlordID, s.UserID)
	case ViewPropertyRequests:
		q.Entity = domain.EntityRequest
		q.Filter = domain.Where(domain.FieldLandlordID, s.UserID).And(domain.FieldPropertyID, propertyID)
	case ViewListings:
		q.Entity, q.Filter = domain.EntityProperty, domain.Where(domain.FieldIsListed, true)
	case ViewMyRequests:
		q.Entity, q.Filter = domain.EntityRequest, domain.Where(domain.FieldTenantID, s.UserID)
	case ViewShortlist:
		q.Entity, q.Filter = domain.EntityShortlist, domain.Where(domain.FieldTenantID, s.UserID)
	default:
		return hub.Query{}, domain.NotFound("view", string(v))
	}
	if err := permits(s, q); err != nil {
		return hub.Query{}, err
	}
	return q, nil
}

// permits enforces the subscription matrix:
//
//	landlord: Property{landlordId=me}, Request{landlordId=me, propertyId=<selected>}
//	tenant:   Property{isListed=true}, Request{tenantId=me}, Shortlist{tenantId=me}
func permits(s domain.Session, q hub.Query) error {
	conds := make(map[domain.Field]any, len(q.Filter.Conditions))
	for _, c := range q.Filter.Conditions {
		if _, dup := conds[c.Field]; dup {
			return forbidden(s, q)
		}
		conds[c.Field] = c.Value
	}
	ok := false
	switch s.Role {
	case domain.RoleLandlord:
		switch q.Entity {
		case domain.EntityProperty:
			ok = len(conds) == 1 && conds[domain.FieldLandlordID] == s.UserID
		case domain.EntityRequest:
			pid, _ := conds[domain.FieldPropertyID].(string)
			ok = len(conds) == 2 && conds[domain.FieldLandlordID] == s.UserID && pid != ""
		}
	case domain.RoleTenant:
		switch q.Entity {
		case domain.EntityProperty:
			ok = len(conds) == 1 && conds[domain.FieldIsListed] == true
		case domain.EntityRequest, domain.EntityShortlist:
			ok = len(conds) == 1 && conds[domain.FieldTenantID] == s.UserID
		}
	}
	if !ok {
		return forbidden(s, q)
	}
	return nil
}

func forbidden(s domain.Session, q hub.Query) error {
	return domain.Forbidden(q.Entity, "", "a "+string(s.Role)+" may not subscribe to "+string(q.Entity)+" where "+q.Filter.String())
}
