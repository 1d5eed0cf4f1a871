package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		kind     ErrorKind
		sentinel error
	}{
		{NotFound(EntityProperty, "p1"), KindNotFound, ErrNotFound},
		{Forbidden(EntityRequest, "r1", "not yours"), KindForbidden, ErrForbidden},
		{InvalidTransition(EntityRequest, "r1", "already decided"), KindInvalidTransition, ErrInvalidTransition},
		{ConstraintViolation(EntityProperty, "p1", "landlordId is immutable"), KindConstraintViolation, ErrConstraintViolation},
		{NotListed("p1"), KindNotListed, ErrNotListed},
		{DuplicateRequest("t1", "p1"), KindDuplicateRequest, ErrDuplicateRequest},
		{Unavailable("store", errors.New("io")), KindUpstreamUnavailable, ErrUpstreamUnavailable},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.kind)
		}
		if !errors.Is(fmt.Errorf("wrapped: %w", tc.err), tc.sentinel) {
			t.Fatalf("expected %v to match sentinel %v", tc.err, tc.sentinel)
		}
		if Notice(tc.err) == "" {
			t.Fatalf("expected notice for %v", tc.err)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	err := NotFound(EntityProperty, "p1")
	if err.Error() != "property p1: not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	cause := errors.New("connection refused")
	up := Unavailable("geocoder", cause)
	if !errors.Is(up, cause) {
		t.Fatalf("expected unwrap to reach cause")
	}
	if !strings.Contains(up.Error(), "connection refused") {
		t.Fatalf("expected cause in message, got %q", up.Error())
	}
}

func TestKindOfForeignError(t *testing.T) {
	if KindOf(nil) != "" || KindOf(errors.New("x")) != "" {
		t.Fatalf("expected empty kind for nil and foreign errors")
	}
	if Notice(nil) != "" {
		t.Fatalf("expected empty notice for nil")
	}
	if Notice(errors.New("x")) != "something went wrong" {
		t.Fatalf("unexpected generic notice")
	}
	if Notice(InvalidTransition(EntityRequest, "r", "")) != "this request was already decided" {
		t.Fatalf("unexpected transition notice")
	}
}

func TestNotPersistedIsAppliedUnavailable(t *testing.T) {
	err := fmt.Errorf("commit: %w", NotPersisted("sqlite", errors.New("database is closed")))
	if !errors.Is(err, ErrUpstreamUnavailable) || KindOf(err) != KindUpstreamUnavailable {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if !Applied(err) || Applied(Unavailable("sqlite", errors.New("x"))) || Applied(nil) {
		t.Fatalf("unexpected Applied classification")
	}
	if Notice(err) == Notice(Unavailable("sqlite", errors.New("x"))) {
		t.Fatalf("applied failures must not ask for a blind retry: %q", Notice(err))
	}
}
