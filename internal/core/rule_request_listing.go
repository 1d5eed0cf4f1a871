package core

import (
	"context"

	"rentalcore/pkg/domain"
)

// RequestListingRule blocks new requests against missing or unlisted properties.
func RequestListingRule() domain.Rule { return requestListingRule{} }

type requestListingRule struct{}

func (requestListingRule) Name() string { return "request_listing" }

func (r requestListingRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Action != domain.ActionCreate {
			continue
		}
		req, ok := change.After.(domain.Request)
		if !ok {
			continue
		}
		property, found := view.FindProperty(req.PropertyID)
		switch {
		case !found:
			res.Violations = append(res.Violations, block(r.Name(), domain.KindNotFound, domain.EntityProperty, req.PropertyID, "property "+req.PropertyID+" does not exist"))
		case !property.IsListed:
			res.Violations = append(res.Violations, block(r.Name(), domain.KindNotListed, domain.EntityProperty, req.PropertyID, "property "+req.PropertyID+" is not listed"))
		case property.LandlordID != req.LandlordID:
			res.Violations = append(res.Violations, block(r.Name(), domain.KindConstraintViolation, domain.EntityRequest, req.ID, "landlordId must match the property owner"))
		}
	}
	return res, nil
}
