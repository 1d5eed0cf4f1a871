package core

import (
	"context"
	"errors"
	"testing"

	"rentalcore/pkg/domain"
)

func TestRulesRejectDirectStoreWrites(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := mustProperty(t, svc, landlordID, 1500)
	req := mustRequest(t, svc, tenantID, p.ID)
	store := svc.Store()

	cases := []struct {
		name string
		want error
		fn   func(tx Transaction) error
	}{
		{
			name: "property landlord reassigned",
			want: domain.ErrConstraintViolation,
			fn: func(tx Transaction) error {
				_, err := tx.UpdateProperty(p.ID, func(prop *Property) error {
					prop.LandlordID = otherLord
					return nil
				})
				return err
			},
		},
		{
			name: "property without price",
			want: domain.ErrConstraintViolation,
			fn: func(tx Transaction) error {
				_, err := tx.CreateProperty(Property{LandlordID: landlordID, Title: "Free"})
				return err
			},
		},
		{
			name: "request tenant rewritten",
			want: domain.ErrConstraintViolation,
			fn: func(tx Transaction) error {
				_, err := tx.UpdateRequest(req.ID, func(r *Request) error {
					r.TenantID = otherTen
					return nil
				})
				return err
			},
		},
		{
			name: "request created approved",
			want: domain.ErrInvalidTransition,
			fn: func(tx Transaction) error {
				_, err := tx.CreateRequest(Request{PropertyID: p.ID, TenantID: otherTen, LandlordID: landlordID, Status: domain.RequestStatusApproved})
				return err
			},
		},
		{
			name: "request with unknown status",
			want: domain.ErrInvalidTransition,
			fn: func(tx Transaction) error {
				_, err := tx.UpdateRequest(req.ID, func(r *Request) error {
					r.Status = "archived"
					return nil
				})
				return err
			},
		},
		{
			name: "second active request",
			want: domain.ErrDuplicateRequest,
			fn: func(tx Transaction) error {
				_, err := tx.CreateRequest(Request{PropertyID: p.ID, TenantID: tenantID, LandlordID: landlordID})
				return err
			},
		},
		{
			name: "request with mismatched landlord",
			want: domain.ErrConstraintViolation,
			fn: func(tx Transaction) error {
				_, err := tx.CreateRequest(Request{PropertyID: p.ID, TenantID: otherTen, LandlordID: otherLord})
				return err
			},
		},
		{
			name: "request for missing property",
			want: domain.ErrNotFound,
			fn: func(tx Transaction) error {
				_, err := tx.CreateRequest(Request{PropertyID: "missing", TenantID: otherTen, LandlordID: landlordID})
				return err
			},
		},
		{
			name: "duplicate shortlist pair",
			want: domain.ErrConstraintViolation,
			fn: func(tx Transaction) error {
				for i := 0; i < 2; i++ {
					if _, err := tx.CreateShortlist(Shortlist{TenantID: tenantID, PropertyID: p.ID}); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.RunInTransaction(ctx, tc.fn)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var rv RuleViolationError
			if !errors.As(err, &rv) || !rv.Result.HasBlocking() {
				t.Fatalf("expected a blocking rule violation, got %T", err)
			}
		})
	}

	got, _ := svc.GetRequest(req.ID)
	if got.TenantID != tenantID || got.Status != domain.RequestStatusPending {
		t.Fatalf("rejected writes must not persist: %+v", got)
	}
}

func TestRulesGuardDecidedRequests(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := mustProperty(t, svc, landlordID, 1500)
	req := mustRequest(t, svc, tenantID, p.ID)
	if _, _, err := svc.Decide(ctx, req.ID, landlordID, DecisionApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateRequest(req.ID, func(r *Request) error {
			r.Status = domain.RequestStatusDenied
			return nil
		})
		return err
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	_, err = svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteRequest(req.ID)
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on delete, got %v", err)
	}
}

func TestDefaultRulesEngineRegistersPolicies(t *testing.T) {
	engine := NewDefaultRulesEngine()
	names := make(map[string]bool)
	for _, name := range engine.Rules() {
		names[name] = true
	}
	for _, want := range []string{"immutable_fields", "property_fields", "request_transition", "request_listing", "active_request_unique", "shortlist_unique"} {
		if !names[want] {
			t.Fatalf("missing rule %s", want)
		}
	}
}
