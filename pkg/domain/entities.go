// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by rentalcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityUser identifies a user directory record.
	EntityUser EntityType = "user"
	// EntityProperty identifies a property listed by a landlord.
	EntityProperty EntityType = "property"
	// EntityRequest identifies a tenant viewing request.
	EntityRequest EntityType = "request"
	// EntityShortlist identifies a tenant bookmark on a property.
	EntityShortlist EntityType = "shortlist"
)

// Role distinguishes the two sides of the marketplace. A user's role is fixed
// at account creation.
type Role string

// Marketplace roles.
const (
	RoleLandlord Role = "landlord"
	RoleTenant   Role = "tenant"
)

// Valid reports whether the role is one of the known marketplace roles.
func (r Role) Valid() bool {
	return r == RoleLandlord || r == RoleTenant
}

// RequestStatus enumerates the persisted request workflow states. Withdrawal
// is modelled as deletion and therefore has no stored status.
type RequestStatus string

// Canonical request statuses.
const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDenied   RequestStatus = "denied"
)

// Terminal reports whether no further transition is accepted from the status.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusDenied
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains the identity and creation stamp shared by all records.
type Base struct {
	ID        string    `json:"id" bson:"id"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// User is a directory entry for an account holder.
type User struct {
	Base
	Email       string `json:"email" bson:"email"`
	DisplayName string `json:"displayName" bson:"displayName"`
	Role        Role   `json:"role" bson:"role"`
}

// Property is a rentable unit owned by a landlord. Visibility to tenants is
// controlled by IsListed; properties are soft-hidden rather than removed.
type Property struct {
	Base
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
	LandlordID  string    `json:"landlordId" bson:"landlordId"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Price       float64   `json:"price" bson:"price"`
	Address     string    `json:"address" bson:"address"`
	Features    []string  `json:"features" bson:"features"`
	Images      []string  `json:"images" bson:"images"`
	IsListed    bool      `json:"isListed" bson:"isListed"`
}

// Request is a tenant's ask to view a property. LandlordID is snapshotted
// from the property at creation time.
type Request struct {
	Base
	PropertyID string        `json:"propertyId" bson:"propertyId"`
	TenantID   string        `json:"tenantId" bson:"tenantId"`
	LandlordID string        `json:"landlordId" bson:"landlordId"`
	Status     RequestStatus `json:"status" bson:"status"`
	Message    string        `json:"message" bson:"message"`
}

// Shortlist records that a tenant saved a property for later.
type Shortlist struct {
	Base
	PropertyID string `json:"propertyId" bson:"propertyId"`
	TenantID   string `json:"tenantId" bson:"tenantId"`
}

// Change describes a mutation applied to an entity during a transaction.
// Before is nil for creates and After is nil for deletes.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// EntityID returns the identifier of the record touched by the change.
func (c Change) EntityID() string {
	if id := recordID(c.After); id != "" {
		return id
	}
	return recordID(c.Before)
}

func recordID(v any) string {
	switch rec := v.(type) {
	case User:
		return rec.ID
	case Property:
		return rec.ID
	case Request:
		return rec.ID
	case Shortlist:
		return rec.ID
	default:
		return ""
	}
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the change feed.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Kind     ErrorKind
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Message != "" {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Is matches the sentinel of any blocking violation kind, so callers can use
// errors.Is(err, ErrConstraintViolation) regardless of which layer rejected the write.
func (e RuleViolationError) Is(target error) bool {
	for _, v := range e.Result.Violations {
		if v.Severity != SeverityBlock {
			continue
		}
		kind := v.Kind
		if kind == "" {
			kind = KindConstraintViolation
		}
		if sentinelFor(kind) == target {
			return true
		}
	}
	return false
}

// Kind returns the kind of the first blocking violation.
func (e RuleViolationError) Kind() ErrorKind {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Kind != "" {
			return v.Kind
		}
	}
	return KindConstraintViolation
}
