package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"rentalcore/pkg/domain"
)

const (
	landlordID = "landlord-1"
	otherLord  = "landlord-2"
	tenantID   = "tenant-1"
	otherTen   = "tenant-2"
)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// newTestService returns an in-memory service with the default rules and a
// registered landlord pair and tenant pair.
func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	clock := &steppingClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewInMemoryService(NewDefaultRulesEngine(), append([]ServiceOption{WithClock(clock)}, opts...)...)
	for _, u := range []domain.User{
		{Base: domain.Base{ID: landlordID}, Email: "lord@example.com", DisplayName: "Lord", Role: domain.RoleLandlord},
		{Base: domain.Base{ID: otherLord}, Email: "other@example.com", Role: domain.RoleLandlord},
		{Base: domain.Base{ID: tenantID}, Email: "tenant@example.com", DisplayName: "Tess", Role: domain.RoleTenant},
		{Base: domain.Base{ID: otherTen}, Email: "t2@example.com", Role: domain.RoleTenant},
	} {
		if _, _, err := svc.RegisterUser(context.Background(), u); err != nil {
			t.Fatalf("register %s: %v", u.ID, err)
		}
	}
	return svc
}

func mustProperty(t *testing.T, svc *Service, owner string, price float64) Property {
	t.Helper()
	p, _, err := svc.CreateProperty(context.Background(), owner, domain.PropertyDraft{
		Title:    "Flat on Main",
		Address:  "1 Main St",
		Price:    price,
		Features: []string{"balcony", " ", "parking "},
	})
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	return p
}

func mustRequest(t *testing.T, svc *Service, tenant, propertyID string) Request {
	t.Helper()
	r, _, err := svc.SubmitRequest(context.Background(), tenant, propertyID, "Interested")
	if err != nil {
		t.Fatalf("submit request: %v", err)
	}
	return r
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
