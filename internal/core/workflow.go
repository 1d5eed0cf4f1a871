package core

import (
	"context"
	"strings"

	"rentalcore/pkg/domain"
)

// Decision is the landlord's verdict on a pending request.
type Decision = domain.RequestStatus

// Accepted decisions.
const (
	DecisionApproved Decision = domain.RequestStatusApproved
	DecisionDenied   Decision = domain.RequestStatusDenied
)

// SubmitRequest creates a pending viewing request from a tenant for a listed
// property. The landlord is copied from the property so the request keeps
// its counterparty if the listing later changes.
func (s *Service) SubmitRequest(ctx context.Context, tenantID, propertyID, message string) (Request, Result, error) {
	var created Request
	var res Result
	err := s.run(ctx, "submit_request", func(ctx context.Context) (outcome, error) {
		message = strings.TrimSpace(message)
		if message == "" {
			message = domain.DefaultRequestMessage
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := requireRole(tx, tenantID, domain.RoleTenant); err != nil {
				return err
			}
			property, ok := tx.FindProperty(propertyID)
			if !ok {
				return domain.NotFound(EntityProperty, propertyID)
			}
			if !property.IsListed {
				return domain.NotListed(propertyID)
			}
			existing := tx.Snapshot().QueryRequests(domain.Where(domain.FieldTenantID, tenantID).And(domain.FieldPropertyID, propertyID))
			for _, r := range existing {
				if !r.Status.Terminal() {
					return domain.DuplicateRequest(tenantID, propertyID)
				}
			}
			var err error
			created, err = tx.CreateRequest(Request{
				PropertyID: propertyID,
				TenantID:   tenantID,
				LandlordID: property.LandlordID,
				Status:     domain.RequestStatusPending,
				Message:    message,
			})
			return err
		})
		return outcome{entityID: created.ID, actor: tenantID}, err
	})
	return created, res, err
}

// Decide approves or denies a pending request. Only the landlord recorded on
// the request may decide, and only once; the status is re-read inside the
// write transaction so a repeated call fails with InvalidTransition.
func (s *Service) Decide(ctx context.Context, requestID, landlordID string, decision Decision) (Request, Result, error) {
	var updated Request
	var res Result
	err := s.run(ctx, "decide_request", func(ctx context.Context) (outcome, error) {
		out := outcome{entityID: requestID, actor: landlordID}
		if decision != DecisionApproved && decision != DecisionDenied {
			return out, domain.InvalidTransition(EntityRequest, requestID, "decision must be approved or denied")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindRequest(requestID)
			if !ok {
				return domain.NotFound(EntityRequest, requestID)
			}
			if current.LandlordID != landlordID {
				return domain.Forbidden(EntityRequest, requestID, "only the property's landlord may decide")
			}
			if current.Status != domain.RequestStatusPending {
				return domain.InvalidTransition(EntityRequest, requestID, "request already "+string(current.Status))
			}
			var err error
			updated, err = tx.UpdateRequest(requestID, func(r *Request) error {
				r.Status = decision
				return nil
			})
			return err
		})
		return out, err
	})
	return updated, res, err
}

// Withdraw deletes a pending request on behalf of the tenant who made it.
// Withdrawal cannot be undone; a second call reports NotFound.
func (s *Service) Withdraw(ctx context.Context, requestID, tenantID string) (Result, error) {
	var res Result
	err := s.run(ctx, "withdraw_request", func(ctx context.Context) (outcome, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindRequest(requestID)
			if !ok {
				return domain.NotFound(EntityRequest, requestID)
			}
			if current.TenantID != tenantID {
				return domain.Forbidden(EntityRequest, requestID, "only the requesting tenant may withdraw")
			}
			if current.Status != domain.RequestStatusPending {
				return domain.InvalidTransition(EntityRequest, requestID, "request already "+string(current.Status))
			}
			return tx.DeleteRequest(requestID)
		})
		return outcome{entityID: requestID, actor: tenantID}, err
	})
	return res, err
}
