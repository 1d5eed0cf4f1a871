package core

import (
	"context"
	"strings"

	"rentalcore/pkg/domain"
)

// PropertyFieldsRule validates the required property fields on every write.
func PropertyFieldsRule() domain.Rule { return propertyFieldsRule{} }

type propertyFieldsRule struct{}

func (propertyFieldsRule) Name() string { return "property_fields" }

func (r propertyFieldsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		p, ok := change.After.(domain.Property)
		if !ok {
			continue
		}
		var msg string
		switch {
		case p.LandlordID == "":
			msg = "landlordId is required"
		case strings.TrimSpace(p.Title) == "":
			msg = "title is required"
		case p.Price <= 0:
			msg = "price must be greater than zero"
		default:
			continue
		}
		res.Violations = append(res.Violations, block(r.Name(), domain.KindConstraintViolation, domain.EntityProperty, p.ID, msg))
	}
	return res, nil
}
