package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock, Kind: KindInvalidTransition, Message: "nope"}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	err := RuleViolationError{Result: result}
	if err.Error() != "transaction blocked by rules: nope" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected rule violation to match invalid transition sentinel")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("did not expect not found match")
	}
	wrapped := fmt.Errorf("commit: %w", err)
	if KindOf(wrapped) != KindInvalidTransition {
		t.Fatalf("expected kind through wrapping, got %q", KindOf(wrapped))
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestRuleViolationErrorDefaults(t *testing.T) {
	err := RuleViolationError{Result: Result{Violations: []Violation{{Rule: "r", Severity: SeverityBlock}}}}
	if err.Error() != "transaction blocked by rules" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err.Kind() != KindConstraintViolation {
		t.Fatalf("expected constraint violation fallback kind, got %q", err.Kind())
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"warn"})
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected violation")
	}
	if names := engine.Rules(); len(names) != 1 || names[0] != "warn" {
		t.Fatalf("unexpected rule names %v", names)
	}
}

func TestRulesEngineEvaluateError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(failingRule{})
	if _, err := engine.Evaluate(context.Background(), emptyView{}, nil); err == nil {
		t.Fatalf("expected evaluation error")
	}
}

func TestChangeEntityID(t *testing.T) {
	create := Change{Entity: EntityShortlist, Action: ActionCreate, After: Shortlist{Base: Base{ID: "s1"}}}
	if create.EntityID() != "s1" {
		t.Fatalf("expected id from after payload")
	}
	del := Change{Entity: EntityRequest, Action: ActionDelete, Before: Request{Base: Base{ID: "r1"}}}
	if del.EntityID() != "r1" {
		t.Fatalf("expected id from before payload")
	}
	if (Change{}).EntityID() != "" {
		t.Fatalf("expected empty id for empty change")
	}
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type failingRule struct{}

func (failingRule) Name() string { return "fail" }

func (failingRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{}, errors.New("boom")
}

type emptyView struct{}

func (emptyView) ListUsers() []User                      { return nil }
func (emptyView) ListProperties() []Property             { return nil }
func (emptyView) ListRequests() []Request                { return nil }
func (emptyView) ListShortlists() []Shortlist            { return nil }
func (emptyView) FindUser(string) (User, bool)           { return User{}, false }
func (emptyView) FindProperty(string) (Property, bool)   { return Property{}, false }
func (emptyView) FindRequest(string) (Request, bool)     { return Request{}, false }
func (emptyView) FindShortlist(string) (Shortlist, bool) { return Shortlist{}, false }
