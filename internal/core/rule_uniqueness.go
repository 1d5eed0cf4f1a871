package core

import (
	"context"
	"fmt"

	"rentalcore/pkg/domain"
)

// ActiveRequestUniqueRule allows at most one pending request per tenant and property.
func ActiveRequestUniqueRule() domain.Rule { return activeRequestUniqueRule{} }

type activeRequestUniqueRule struct{}

func (activeRequestUniqueRule) Name() string { return "active_request_unique" }

func (r activeRequestUniqueRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	if !touches(changes, domain.EntityRequest) {
		return res, nil
	}
	counts := make(map[[2]string]int)
	for _, req := range view.ListRequests() {
		if req.Status.Terminal() {
			continue
		}
		key := [2]string{req.TenantID, req.PropertyID}
		counts[key]++
		if counts[key] == 2 {
			res.Violations = append(res.Violations, block(r.Name(), domain.KindDuplicateRequest, domain.EntityProperty, req.PropertyID,
				fmt.Sprintf("tenant %s already has an active request for property %s", req.TenantID, req.PropertyID)))
		}
	}
	return res, nil
}

// ShortlistUniqueRule allows at most one shortlist record per tenant and property.
func ShortlistUniqueRule() domain.Rule { return shortlistUniqueRule{} }

type shortlistUniqueRule struct{}

func (shortlistUniqueRule) Name() string { return "shortlist_unique" }

func (r shortlistUniqueRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	if !touches(changes, domain.EntityShortlist) {
		return res, nil
	}
	counts := make(map[[2]string]int)
	for _, sl := range view.ListShortlists() {
		key := [2]string{sl.TenantID, sl.PropertyID}
		counts[key]++
		if counts[key] == 2 {
			res.Violations = append(res.Violations, block(r.Name(), domain.KindConstraintViolation, domain.EntityShortlist, sl.ID,
				fmt.Sprintf("property %s is already shortlisted by tenant %s", sl.PropertyID, sl.TenantID)))
		}
	}
	return res, nil
}

func touches(changes []domain.Change, entity domain.EntityType) bool {
	for _, c := range changes {
		if c.Entity == entity && c.Action == domain.ActionCreate {
			return true
		}
	}
	return false
}
