package core

import (
	"context"
	"fmt"

	"rentalcore/pkg/domain"
)

// ImmutableFieldsRule blocks updates that change identity or ownership fields.
func ImmutableFieldsRule() domain.Rule { return immutableFieldsRule{} }

type immutableFieldsRule struct{}

func (immutableFieldsRule) Name() string { return "immutable_fields" }

func (r immutableFieldsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Action != domain.ActionUpdate {
			continue
		}
		var field string
		switch before := change.Before.(type) {
		case domain.Property:
			after, ok := change.After.(domain.Property)
			if !ok {
				continue
			}
			field = firstChanged(
				fieldPair{"landlordId", before.LandlordID, after.LandlordID},
				fieldPair{"createdAt", before.CreatedAt.String(), after.CreatedAt.String()},
			)
		case domain.Request:
			after, ok := change.After.(domain.Request)
			if !ok {
				continue
			}
			field = firstChanged(
				fieldPair{"propertyId", before.PropertyID, after.PropertyID},
				fieldPair{"tenantId", before.TenantID, after.TenantID},
				fieldPair{"landlordId", before.LandlordID, after.LandlordID},
				fieldPair{"createdAt", before.CreatedAt.String(), after.CreatedAt.String()},
			)
		case domain.Shortlist, domain.User:
			field = "record"
		}
		if field == "" {
			continue
		}
		id := change.EntityID()
		res.Violations = append(res.Violations, block(r.Name(), domain.KindConstraintViolation, change.Entity, id,
			fmt.Sprintf("%s %s: %s is immutable", change.Entity, id, field)))
	}
	return res, nil
}

type fieldPair struct {
	name          string
	before, after string
}

func firstChanged(pairs ...fieldPair) string {
	for _, p := range pairs {
		if p.before != p.after {
			return p.name
		}
	}
	return ""
}
