package core

import (
	"context"
	"fmt"

	"rentalcore/pkg/domain"
)

// RequestTransitionRule enforces the request state machine: requests are
// created pending, leave pending at most once and are never changed or
// deleted after reaching a terminal state.
func RequestTransitionRule() domain.Rule { return requestTransitionRule{} }

type requestTransitionRule struct{}

var (
	requestStatuses = toSet(
		string(domain.RequestStatusPending),
		string(domain.RequestStatusApproved),
		string(domain.RequestStatusDenied),
	)
	requestTerminal = toSet(
		string(domain.RequestStatusApproved),
		string(domain.RequestStatusDenied),
	)
)

func (requestTransitionRule) Name() string { return "request_transition" }

func (r requestTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityRequest {
			continue
		}
		before, hasBefore := change.Before.(domain.Request)
		after, hasAfter := change.After.(domain.Request)
		var msg string
		switch {
		case hasAfter && !member(requestStatuses, string(after.Status)):
			msg = fmt.Sprintf("request %s is set to invalid status %q", after.ID, after.Status)
		case change.Action == domain.ActionCreate && after.Status != domain.RequestStatusPending:
			msg = fmt.Sprintf("request %s must be created pending", after.ID)
		case hasBefore && member(requestTerminal, string(before.Status)) && change.Action == domain.ActionDelete:
			msg = fmt.Sprintf("cannot withdraw request %s after it was %s", before.ID, before.Status)
		case hasBefore && hasAfter && member(requestTerminal, string(before.Status)) && before != after:
			msg = fmt.Sprintf("cannot change request %s after it was %s", before.ID, before.Status)
		default:
			continue
		}
		res.Violations = append(res.Violations, block(r.Name(), domain.KindInvalidTransition, domain.EntityRequest, change.EntityID(), msg))
	}
	return res, nil
}

func member(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}
