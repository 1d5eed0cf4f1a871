package domain

import (
	"fmt"
	"strings"
)

// Field names an indexed attribute usable in equality filters.
type Field string

// Indexed fields. Queries may only constrain these.
const (
	FieldLandlordID Field = "landlordId"
	FieldTenantID   Field = "tenantId"
	FieldPropertyID Field = "propertyId"
	FieldIsListed   Field = "isListed"
)

var indexedFields = map[EntityType]map[Field]bool{
	EntityProperty:  {FieldLandlordID: true, FieldIsListed: true},
	EntityRequest:   {FieldLandlordID: true, FieldTenantID: true, FieldPropertyID: true},
	EntityShortlist: {FieldTenantID: true, FieldPropertyID: true},
}

// Condition is a single equality constraint.
type Condition struct {
	Field Field
	Value any
}

// Filter is a conjunction of equality conditions. The zero value matches everything.
type Filter struct {
	Conditions []Condition
}

// Where starts a filter with one equality condition.
func Where(field Field, value any) Filter {
	return Filter{Conditions: []Condition{{Field: field, Value: value}}}
}

// And returns a copy of the filter extended with another condition.
func (f Filter) And(field Field, value any) Filter {
	out := Filter{Conditions: make([]Condition, 0, len(f.Conditions)+1)}
	out.Conditions = append(out.Conditions, f.Conditions...)
	out.Conditions = append(out.Conditions, Condition{Field: field, Value: value})
	return out
}

// Value returns the value constrained for field, if present.
func (f Filter) Value(field Field) (any, bool) {
	for _, c := range f.Conditions {
		if c.Field == field {
			return c.Value, true
		}
	}
	return nil, false
}

// String renders the filter in a stable, readable form.
func (f Filter) String() string {
	if len(f.Conditions) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		parts = append(parts, fmt.Sprintf("%s=%v", c.Field, c.Value))
	}
	return strings.Join(parts, " AND ")
}

// Validate checks that every condition targets an indexed field of the
// entity with a value of the right type.
func (f Filter) Validate(entity EntityType) error {
	fields, ok := indexedFields[entity]
	if !ok {
		return ConstraintViolation(entity, "", "entity does not support queries")
	}
	for _, c := range f.Conditions {
		if !fields[c.Field] {
			return ConstraintViolation(entity, "", fmt.Sprintf("field %q is not indexed", c.Field))
		}
		switch c.Field {
		case FieldIsListed:
			if _, ok := c.Value.(bool); !ok {
				return ConstraintViolation(entity, "", fmt.Sprintf("field %q requires a bool value", c.Field))
			}
		default:
			if _, ok := c.Value.(string); !ok {
				return ConstraintViolation(entity, "", fmt.Sprintf("field %q requires a string value", c.Field))
			}
		}
	}
	return nil
}

// Indexed is implemented by records that expose indexed field values.
type Indexed interface {
	IndexValue(field Field) (any, bool)
}

// Matches reports whether the record satisfies every condition.
func (f Filter) Matches(rec Indexed) bool {
	for _, c := range f.Conditions {
		v, ok := rec.IndexValue(c.Field)
		if !ok || v != c.Value {
			return false
		}
	}
	return true
}

// IndexValue implements Indexed.
func (p Property) IndexValue(field Field) (any, bool) {
	switch field {
	case FieldLandlordID:
		return p.LandlordID, true
	case FieldIsListed:
		return p.IsListed, true
	default:
		return nil, false
	}
}

// IndexValue implements Indexed.
func (r Request) IndexValue(field Field) (any, bool) {
	switch field {
	case FieldLandlordID:
		return r.LandlordID, true
	case FieldTenantID:
		return r.TenantID, true
	case FieldPropertyID:
		return r.PropertyID, true
	default:
		return nil, false
	}
}

// IndexValue implements Indexed.
func (s Shortlist) IndexValue(field Field) (any, bool) {
	switch field {
	case FieldTenantID:
		return s.TenantID, true
	case FieldPropertyID:
		return s.PropertyID, true
	default:
		return nil, false
	}
}
