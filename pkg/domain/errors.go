package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the store, workflow and views.
type ErrorKind string

// Error kinds returned across the core.
const (
	KindNotFound            ErrorKind = "not_found"
	KindForbidden           ErrorKind = "forbidden"
	KindInvalidTransition   ErrorKind = "invalid_transition"
	KindConstraintViolation ErrorKind = "constraint_violation"
	KindNotListed           ErrorKind = "not_listed"
	KindDuplicateRequest    ErrorKind = "duplicate_request"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
)

// Sentinels matched by errors.Is for every error of the corresponding kind.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrNotListed           = errors.New("property is not listed")
	ErrDuplicateRequest    = errors.New("duplicate request")
	// ErrUpstreamUnavailable covers collaborator I/O failures. When a durable
	// store fails to save after committing in memory the change is already
	// applied and visible; Applied reports that case, and callers must re-read
	// rather than repeat the write.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

func sentinelFor(kind ErrorKind) error {
	switch kind {
	case KindNotFound:
		return ErrNotFound
	case KindForbidden:
		return ErrForbidden
	case KindInvalidTransition:
		return ErrInvalidTransition
	case KindConstraintViolation:
		return ErrConstraintViolation
	case KindNotListed:
		return ErrNotListed
	case KindDuplicateRequest:
		return ErrDuplicateRequest
	case KindUpstreamUnavailable:
		return ErrUpstreamUnavailable
	default:
		return nil
	}
}

// Error is the typed failure returned by core operations.
type Error struct {
	Kind    ErrorKind
	Entity  EntityType
	ID      string
	Message string
	Err     error
	// Applied is set when the change took effect in memory but was not saved.
	Applied bool
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		if s := sentinelFor(e.Kind); s != nil {
			msg = s.Error()
		} else {
			msg = string(e.Kind)
		}
	}
	if e.Entity != "" && e.ID != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Entity, e.ID, msg)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s := sentinelFor(e.Kind)
	return s != nil && s == target
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing entity.
func NotFound(entity EntityType, id string) error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id}
}

// Forbidden reports an actor lacking rights for the entity or action.
func Forbidden(entity EntityType, id, message string) error {
	return &Error{Kind: KindForbidden, Entity: entity, ID: id, Message: message}
}

// InvalidTransition reports a violated state machine rule.
func InvalidTransition(entity EntityType, id, message string) error {
	return &Error{Kind: KindInvalidTransition, Entity: entity, ID: id, Message: message}
}

// ConstraintViolation reports an immutable-field mutation, malformed input or uniqueness breach.
func ConstraintViolation(entity EntityType, id, message string) error {
	return &Error{Kind: KindConstraintViolation, Entity: entity, ID: id, Message: message}
}

// NotListed reports an action that requires an active listing.
func NotListed(propertyID string) error {
	return &Error{Kind: KindNotListed, Entity: EntityProperty, ID: propertyID}
}

// DuplicateRequest reports an existing active request for the same tenant and property.
func DuplicateRequest(tenantID, propertyID string) error {
	return &Error{
		Kind:    KindDuplicateRequest,
		Entity:  EntityProperty,
		ID:      propertyID,
		Message: fmt.Sprintf("tenant %s already has an active request", tenantID),
	}
}

// Unavailable wraps a collaborator I/O failure.
func Unavailable(component string, err error) error {
	return &Error{Kind: KindUpstreamUnavailable, Message: component + " unavailable", Err: err}
}

// NotPersisted reports a committed change that component failed to save.
// The change stays applied and is written by the next successful save.
func NotPersisted(component string, err error) error {
	return &Error{Kind: KindUpstreamUnavailable, Message: component + " unavailable", Err: err, Applied: true}
}

// Applied reports whether err describes a change that took effect despite
// the failure.
func Applied(err error) bool {
	var typed *Error
	return errors.As(err, &typed) && typed.Applied
}

// KindOf extracts the error kind, returning the empty kind for foreign errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	var rv RuleViolationError
	if errors.As(err, &rv) {
		return rv.Kind()
	}
	return ""
}

// Notice renders a short, actionable message suitable for showing to the
// person who triggered the failing action.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindNotFound:
		return "this item no longer exists"
	case KindForbidden:
		return "you are not allowed to do that"
	case KindInvalidTransition:
		return "this request was already decided"
	case KindConstraintViolation:
		return "the change was rejected: " + err.Error()
	case KindNotListed:
		return "this property is no longer listed"
	case KindDuplicateRequest:
		return "you already have an open request for this property"
	case KindUpstreamUnavailable:
		if Applied(err) {
			return "your change was made but not yet saved; refresh instead of repeating it"
		}
		return "service temporarily unavailable, please retry"
	default:
		return "something went wrong"
	}
}
