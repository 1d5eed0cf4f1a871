package domain

import (
	"strings"
	"time"
)

// DefaultRequestMessage is used when a tenant submits a request without a message.
const DefaultRequestMessage = "Interested in viewing this property"

// PropertyDraft carries the landlord-supplied fields for a new property.
// IsListed defaults to true when nil.
type PropertyDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Address     string   `json:"address"`
	Features    []string `json:"features"`
	Images      []string `json:"images"`
	IsListed    *bool    `json:"isListed,omitempty"`
}

// PropertyPatch is a partial update. Nil fields are left untouched. The
// immutable fields are part of the type only so that a caller trying to
// change them is rejected instead of silently ignored.
type PropertyPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	Address     *string   `json:"address,omitempty"`
	Features    *[]string `json:"features,omitempty"`
	Images      *[]string `json:"images,omitempty"`
	IsListed    *bool     `json:"isListed,omitempty"`

	ID         *string    `json:"id,omitempty"`
	LandlordID *string    `json:"landlordId,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}

// Validate rejects patches that touch immutable fields.
func (p PropertyPatch) Validate(id string) error {
	switch {
	case p.ID != nil:
		return ConstraintViolation(EntityProperty, id, "id is immutable")
	case p.LandlordID != nil:
		return ConstraintViolation(EntityProperty, id, "landlordId is immutable")
	case p.CreatedAt != nil:
		return ConstraintViolation(EntityProperty, id, "createdAt is immutable")
	}
	return nil
}

// Empty reports whether the patch carries no mutable field.
func (p PropertyPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Price == nil && p.Address == nil &&
		p.Features == nil && p.Images == nil && p.IsListed == nil
}

// Apply copies the mutable fields present in the patch onto the property.
func (p PropertyPatch) Apply(prop *Property) {
	if p.Title != nil {
		prop.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		prop.Description = *p.Description
	}
	if p.Price != nil {
		prop.Price = *p.Price
	}
	if p.Address != nil {
		prop.Address = strings.TrimSpace(*p.Address)
	}
	if p.Features != nil {
		prop.Features = NormalizeFeatures(*p.Features)
	}
	if p.Images != nil {
		prop.Images = append([]string(nil), (*p.Images)...)
	}
	if p.IsListed != nil {
		prop.IsListed = *p.IsListed
	}
}

// ParseFeatures splits a comma separated feature list, trimming blanks.
func ParseFeatures(raw string) []string {
	return NormalizeFeatures(strings.Split(raw, ","))
}

// NormalizeFeatures trims each feature and drops empty entries, keeping order.
func NormalizeFeatures(features []string) []string {
	out := make([]string, 0, len(features))
	for _, f := range features {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
