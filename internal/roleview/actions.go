package roleview

import (
	"context"

	"rentalcore/internal/core"
	"rentalcore/pkg/domain"
)

// Mutations act as the session's user. Each fails with Forbidden before
// reaching the service when the role does not permit the action. Results
// reach open views through the hub, not through these return values.

func (c *Composer) CreateProperty(ctx context.Context, draft domain.PropertyDraft) (domain.Property, error) {
	if err := c.require(ActionCreateProperty, domain.EntityProperty, ""); err != nil {
		return domain.Property{}, err
	}
	p, _, err := c.svc.CreateProperty(ctx, c.session.UserID, draft)
	return p, err
}

func (c *Composer) UpdateProperty(ctx context.Context, id string, patch domain.PropertyPatch) (domain.Property, error) {
	if err := c.require(ActionEditProperty, domain.EntityProperty, id); err != nil {
		return domain.Property{}, err
	}
	p, _, err := c.svc.UpdateProperty(ctx, c.session.UserID, id, patch)
	return p, err
}

func (c *Composer) SetListed(ctx context.Context, id string, listed bool) (domain.Property, error) {
	if err := c.require(ActionToggleListing, domain.EntityProperty, id); err != nil {
		return domain.Property{}, err
	}
	p, _, err := c.svc.SetListed(ctx, c.session.UserID, id, listed)
	return p, err
}

func (c *Composer) ToggleListed(ctx context.Context, id string) (domain.Property, error) {
	if err := c.require(ActionToggleListing, domain.EntityProperty, id); err != nil {
		return domain.Property{}, err
	}
	p, _, err := c.svc.ToggleListed(ctx, c.session.UserID, id)
	return p, err
}

func (c *Composer) DeleteProperty(ctx context.Context, id string) error {
	if err := c.require(ActionDeleteProperty, domain.EntityProperty, id); err != nil {
		return err
	}
	_, err := c.svc.DeleteProperty(ctx, c.session.UserID, id)
	return err
}

func (c *Composer) AddPropertyImage(ctx context.Context, id string, data []byte, contentType string) (domain.Property, error) {
	if err := c.require(ActionAddImage, domain.EntityProperty, id); err != nil {
		return domain.Property{}, err
	}
	p, _, err := c.svc.AddPropertyImage(ctx, c.session.UserID, id, data, contentType)
	return p, err
}

func (c *Composer) Decide(ctx context.Context, requestID string, decision core.Decision) (domain.Request, error) {
	if err := c.require(ActionDecideRequest, domain.EntityRequest, requestID); err != nil {
		return domain.Request{}, err
	}
	r, _, err := c.svc.Decide(ctx, requestID, c.session.UserID, decision)
	return r, err
}

func (c *Composer) SubmitRequest(ctx context.Context, propertyID, message string) (domain.Request, error) {
	if err := c.require(ActionSubmitRequest, domain.EntityProperty, propertyID); err != nil {
		return domain.Request{}, err
	}
	r, _, err := c.svc.SubmitRequest(ctx, c.session.UserID, propertyID, message)
	return r, err
}

func (c *Composer) Withdraw(ctx context.Context, requestID string) error {
	if err := c.require(ActionWithdrawRequest, domain.EntityRequest, requestID); err != nil {
		return err
	}
	_, err := c.svc.Withdraw(ctx, requestID, c.session.UserID)
	return err
}

func (c *Composer) ToggleShortlist(ctx context.Context, propertyID string) (core.ToggleState, error) {
	if err := c.require(ActionToggleShortlist, domain.EntityProperty, propertyID); err != nil {
		return "", err
	}
	state, _, err := c.svc.ToggleShortlist(ctx, c.session.UserID, propertyID)
	return state, err
}
