package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"rentalcore/pkg/domain"
)

func TestSubmitAndDecideScenario(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := mustProperty(t, svc, landlordID, 1500)

	req := mustRequest(t, svc, tenantID, p.ID)
	if req.Status != domain.RequestStatusPending || req.TenantID != tenantID || req.LandlordID != landlordID || req.PropertyID != p.ID {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Message != "Interested" {
		t.Fatalf("unexpected message %q", req.Message)
	}

	approved, _, err := svc.Decide(ctx, req.ID, landlordID, DecisionApproved)
	if err != nil || approved.Status != domain.RequestStatusApproved {
		t.Fatalf("approve: %+v %v", approved, err)
	}
	if _, _, err := svc.Decide(ctx, req.ID, landlordID, DecisionDenied); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on second decide, got %v", err)
	}
	if domain.Notice(err) == "" {
		t.Fatalf("expected a notice")
	}
	got, _ := svc.GetRequest(req.ID)
	if got.Status != domain.RequestStatusApproved {
		t.Fatalf("first decision must stand, got %s", got.Status)
	}
	if got.TenantID != req.TenantID || got.LandlordID != req.LandlordID || got.PropertyID != req.PropertyID {
		t.Fatalf("request identity fields changed: %+v", got)
	}
}

func TestSubmitRequestDefaultsAndFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := mustProperty(t, svc, landlordID, 1500)

	req, _, err := svc.SubmitRequest(ctx, tenantID, p.ID, "   ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if req.Message != domain.DefaultRequestMessage {
		t.Fatalf("expected default message, got %q", req.Message)
	}
	if _, _, err := svc.SubmitRequest(ctx, tenantID, p.ID, "again"); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected duplicate request, got %v", err)
	}
	if _, _, err := svc.SubmitRequest(ctx, tenantID, "missing", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := svc.SubmitRequest(ctx, landlordID, p.ID, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected landlord to be forbidden from requesting, got %v", err)
	}

	if _, _, err := svc.Decide(ctx, req.ID, landlordID, DecisionDenied); err != nil {
		t.Fatalf("deny: %v", err)
	}
	if _, _, err := svc.SubmitRequest(ctx, tenantID, p.ID, "second try"); err != nil {
		t.Fatalf("a decided request must not block a new one: %v", err)
	}
}

func TestDelistingKeepsExistingRequestsActionable(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := mustProperty(t, svc, landlordID, 1500)
	first := mustRequest(t, svc, tenantID, p.ID)

	third := domain.User{Email: "t3@example.com", Role: domain.RoleTenant}
	t3, _, err := svc.RegisterUser(ctx, third)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second := mustRequest(t, svc, t3.ID, p.ID)

	if _, _, err := svc.SetListed(ctx, landlordID, p.ID, false); err != nil {
		t.Fatalf("unlist: %v", err)
	}
	pending, err := svc.QueryRequests(domain.Where(domain.FieldLandlordID, landlordID).And(domain.FieldPropertyID, p.ID))
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected both requests visible to landlord, got %d %v", len(pending), err)
	}
	if _, _, err := svc.Decide(ctx, first.ID, landlordID, DecisionApproved); err != nil {
		t.Fatalf("decide after delisting: %v", err)
	}
	if _, err := svc.Withdraw(ctx, second.ID, t3.ID); err != nil {
		t.Fatalf("withdraw after delisting: %v", err)
	}
	if _, _, err := svc.SubmitRequest(ctx, otherTen, p.ID, ""); !errors.Is(err, domain.ErrNotListed) {
		t.Fatalf("expected not listed, got %v", err)
	}
}

func TestDecideAuthorization(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := mustProperty(t, svc, landlordID, 1500)
	req := mustRequest(t, svc, tenantID, p.ID)

	if _, _, err := svc.Decide(ctx, req.ID, otherLord, DecisionApproved); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, _, err := svc.Decide(ctx, req.ID, tenantID, DecisionApproved); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected tenant forbidden, got %v", err)
	}
	if _, _, err := svc.Decide(ctx, req.ID, landlordID, domain.RequestStatusPending); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid decision, got %v", err)
	}
	if _, _, err := svc.Decide(ctx, "missing", landlordID, DecisionApproved); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := mustProperty(t, svc, landlordID, 1500)
	req := mustRequest(t, svc, tenantID, p.ID)

	if _, err := svc.Withdraw(ctx, req.ID, otherTen); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.Withdraw(ctx, req.ID, tenantID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := svc.Withdraw(ctx, req.ID, tenantID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on repeat withdraw, got %v", err)
	}

	decided := mustRequest(t, svc, tenantID, p.ID)
	if _, _, err := svc.Decide(ctx, decided.ID, landlordID, DecisionDenied); err != nil {
		t.Fatalf("deny: %v", err)
	}
	if _, err := svc.Withdraw(ctx, decided.ID, tenantID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for decided request, got %v", err)
	}
}

func TestConcurrentDecideAppliesOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := mustProperty(t, svc, landlordID, 1500)
	req := mustRequest(t, svc, tenantID, p.ID)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		decision := DecisionApproved
		if i%2 == 1 {
			decision = DecisionDenied
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Decide(ctx, req.ID, landlordID, decision)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrInvalidTransition):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one decision, got %d", successes)
	}
}
