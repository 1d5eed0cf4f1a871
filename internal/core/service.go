// Package core implements the rental marketplace service: entity store
// operations, the request workflow and the shortlist registry, all executed
// as store transactions guarded by the rules engine.
package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"rentalcore/internal/infra/persistence/memory"
	"rentalcore/pkg/domain"
)

// AssetStore uploads binary assets and returns an opaque URL.
type AssetStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Service exposes transactional operations over the rental domain.
type Service struct {
	store   PersistentStore
	logger  Logger
	clock   Clock
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	assets  AssetStore
	now     func() time.Time
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	var clock Clock
	if o.clockSet {
		clock = o.clock
	}
	return &Service{
		store:   store,
		logger:  o.logger,
		clock:   o.clock,
		audit:   o.audit,
		metrics: o.metrics,
		tracer:  o.tracer,
		assets:  o.assets,
		now:     selectNowFunc(store, clock),
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. A clock
// supplied through WithClock also stamps the stored records.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	var storeOpts []memory.Option
	if o.clockSet {
		storeOpts = append(storeOpts, memory.WithClock(o.clock.Now))
	}
	return NewService(memory.NewStore(engine, storeOpts...), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

type rulesEngineProvider interface {
	RulesEngine() *RulesEngine
}

type nowFuncProvider interface {
	NowFunc() func() time.Time
}

func extractRulesEngine(store PersistentStore) *RulesEngine {
	if p, ok := store.(rulesEngineProvider); ok {
		return p.RulesEngine()
	}
	return nil
}

// RulesEngine returns the engine guarding the store, when exposed.
func (s *Service) RulesEngine() *RulesEngine {
	return extractRulesEngine(s.store)
}

func selectNowFunc(store PersistentStore, clock Clock) func() time.Time {
	if p, ok := store.(nowFuncProvider); ok {
		if fn := p.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	if clock != nil {
		return clock.Now
	}
	return func() time.Time { return time.Now().UTC() }
}

type operationMeta struct {
	entity EntityType
	action Action
}

var operationMetadata = map[string]operationMeta{
	"register_user":      {EntityUser, ActionCreate},
	"create_property":    {EntityProperty, ActionCreate},
	"update_property":    {EntityProperty, ActionUpdate},
	"set_listed":         {EntityProperty, ActionUpdate},
	"toggle_listed":      {EntityProperty, ActionUpdate},
	"add_property_image": {EntityProperty, ActionUpdate},
	"delete_property":    {EntityProperty, ActionDelete},
	"submit_request":     {EntityRequest, ActionCreate},
	"decide_request":     {EntityRequest, ActionUpdate},
	"withdraw_request":   {EntityRequest, ActionDelete},
	"toggle_shortlist":   {EntityShortlist, ActionUpdate},
}

// outcome carries what an operation touched. Action overrides the
// operation's default when the effect is only known after the fact.
type outcome struct {
	entityID string
	actor    string
	action   Action
}

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (outcome, error)) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	out, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logger.Error("core operation failed", "operation", op, "entity_id", out.entityID, "kind", string(domain.KindOf(err)), "duration", duration, "error", err)
		s.recordAudit(ctx, op, out, AuditStatusError, err, duration)
		return err
	}
	s.logger.Debug("core operation succeeded", "operation", op, "entity_id", out.entityID, "duration", duration)
	s.recordAudit(ctx, op, out, AuditStatusSuccess, nil, duration)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, op string, out outcome, status AuditStatus, err error, duration time.Duration) {
	meta, ok := operationMetadata[op]
	if !ok {
		return
	}
	action := meta.action
	if out.action != "" {
		action = out.action
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    action,
		EntityID:  out.entityID,
		Actor:     out.actor,
		Status:    status,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// Users ----------------------------------------------------------------------

// RegisterUser adds a user to the directory. Email and a known role are required.
func (s *Service) RegisterUser(ctx context.Context, user User) (User, Result, error) {
	var created User
	var res Result
	err := s.run(ctx, "register_user", func(ctx context.Context) (outcome, error) {
		user.Email = strings.TrimSpace(user.Email)
		user.DisplayName = strings.TrimSpace(user.DisplayName)
		if user.Email == "" {
			return outcome{entityID: user.ID}, domain.ConstraintViolation(EntityUser, user.ID, "email is required")
		}
		if !user.Role.Valid() {
			return outcome{entityID: user.ID}, domain.ConstraintViolation(EntityUser, user.ID, "role must be landlord or tenant")
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateUser(user)
			return err
		})
		return outcome{entityID: created.ID, actor: created.ID}, err
	})
	return created, res, err
}

// GetUser looks up a directory entry.
func (s *Service) GetUser(id string) (User, error) {
	u, ok := s.store.GetUser(id)
	if !ok {
		return User{}, domain.NotFound(EntityUser, id)
	}
	return u, nil
}

func requireRole(tx Transaction, actorID string, role domain.Role) error {
	u, ok := tx.FindUser(actorID)
	if !ok {
		return domain.Forbidden(EntityUser, actorID, "unknown user")
	}
	if u.Role != role {
		return domain.Forbidden(EntityUser, actorID, "only a "+string(role)+" may do that")
	}
	return nil
}

// Properties -----------------------------------------------------------------

func validateDraft(d domain.PropertyDraft) error {
	if strings.TrimSpace(d.Title) == "" {
		return domain.ConstraintViolation(EntityProperty, "", "title is required")
	}
	if d.Price <= 0 {
		return domain.ConstraintViolation(EntityProperty, "", "price must be greater than zero")
	}
	return nil
}

// CreateProperty lists a new property for a registered landlord. Listing
// defaults to true unless the draft says otherwise.
func (s *Service) CreateProperty(ctx context.Context, actorID string, draft domain.PropertyDraft) (Property, Result, error) {
	var created Property
	var res Result
	err := s.run(ctx, "create_property", func(ctx context.Context) (outcome, error) {
		if err := validateDraft(draft); err != nil {
			return outcome{actor: actorID}, err
		}
		listed := true
		if draft.IsListed != nil {
			listed = *draft.IsListed
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if err := requireRole(tx, actorID, domain.RoleLandlord); err != nil {
				return err
			}
			var err error
			created, err = tx.CreateProperty(Property{
				LandlordID:  actorID,
				Title:       strings.TrimSpace(draft.Title),
				Description: draft.Description,
				Price:       draft.Price,
				Address:     strings.TrimSpace(draft.Address),
				Features:    domain.NormalizeFeatures(draft.Features),
				Images:      append([]string(nil), draft.Images...),
				IsListed:    listed,
			})
			return err
		})
		return outcome{entityID: created.ID, actor: actorID}, err
	})
	return created, res, err
}

// GetProperty returns a property by id.
func (s *Service) GetProperty(id string) (Property, error) {
	p, ok := s.store.GetProperty(id)
	if !ok {
		return Property{}, domain.NotFound(EntityProperty, id)
	}
	return p, nil
}

// mutateOwnedProperty runs mutator against a property owned by actorID.
func (s *Service) mutateOwnedProperty(ctx context.Context, actorID, id string, mutator func(*Property) error) (Property, Result, error) {
	var updated Property
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.FindProperty(id)
		if !ok {
			return domain.NotFound(EntityProperty, id)
		}
		if current.LandlordID != actorID {
			return domain.Forbidden(EntityProperty, id, "only the owning landlord may change this property")
		}
		var err error
		updated, err = tx.UpdateProperty(id, mutator)
		return err
	})
	return updated, res, err
}

// UpdateProperty applies a partial update. Patches touching immutable fields
// are rejected with ConstraintViolation; an empty patch changes nothing.
func (s *Service) UpdateProperty(ctx context.Context, actorID, id string, patch domain.PropertyPatch) (Property, Result, error) {
	var updated Property
	var res Result
	err := s.run(ctx, "update_property", func(ctx context.Context) (outcome, error) {
		out := outcome{entityID: id, actor: actorID}
		if err := patch.Validate(id); err != nil {
			return out, err
		}
		if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
			return out, domain.ConstraintViolation(EntityProperty, id, "title is required")
		}
		if patch.Price != nil && *patch.Price <= 0 {
			return out, domain.ConstraintViolation(EntityProperty, id, "price must be greater than zero")
		}
		if patch.Empty() {
			current, ok := s.store.GetProperty(id)
			if !ok {
				return out, domain.NotFound(EntityProperty, id)
			}
			if current.LandlordID != actorID {
				return out, domain.Forbidden(EntityProperty, id, "only the owning landlord may change this property")
			}
			updated = current
			return out, nil
		}
		var err error
		updated, res, err = s.mutateOwnedProperty(ctx, actorID, id, func(p *Property) error {
			patch.Apply(p)
			return nil
		})
		return out, err
	})
	return updated, res, err
}

// SetListed sets the listing flag on an owned property.
func (s *Service) SetListed(ctx context.Context, actorID, id string, listed bool) (Property, Result, error) {
	var updated Property
	var res Result
	err := s.run(ctx, "set_listed", func(ctx context.Context) (outcome, error) {
		var err error
		updated, res, err = s.mutateOwnedProperty(ctx, actorID, id, func(p *Property) error {
			p.IsListed = listed
			return nil
		})
		return outcome{entityID: id, actor: actorID}, err
	})
	return updated, res, err
}

// ToggleListed flips the listing flag on an owned property, reading the
// current value inside the write transaction.
func (s *Service) ToggleListed(ctx context.Context, actorID, id string) (Property, Result, error) {
	var updated Property
	var res Result
	err := s.run(ctx, "toggle_listed", func(ctx context.Context) (outcome, error) {
		var err error
		updated, res, err = s.mutateOwnedProperty(ctx, actorID, id, func(p *Property) error {
			p.IsListed = !p.IsListed
			return nil
		})
		return outcome{entityID: id, actor: actorID}, err
	})
	return updated, res, err
}

// DeleteProperty hard-deletes an owned property. Requests and shortlists
// that reference it are kept and rendered as placeholders by views.
func (s *Service) DeleteProperty(ctx context.Context, actorID, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_property", func(ctx context.Context) (outcome, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindProperty(id)
			if !ok {
				return domain.NotFound(EntityProperty, id)
			}
			if current.LandlordID != actorID {
				return domain.Forbidden(EntityProperty, id, "only the owning landlord may delete this property")
			}
			return tx.DeleteProperty(id)
		})
		return outcome{entityID: id, actor: actorID}, err
	})
	return res, err
}

var errNoAssetStore = errors.New("no asset store configured")

// assetRemover is implemented by asset stores that can delete an upload
// whose URL never made it onto the property.
type assetRemover interface {
	Remove(ctx context.Context, url string) error
}

// AddPropertyImage uploads data through the asset store and appends the
// resulting URL to the property's images. Ownership is checked before the
// upload and again when the URL is written.
func (s *Service) AddPropertyImage(ctx context.Context, actorID, id string, data []byte, contentType string) (Property, Result, error) {
	var updated Property
	var res Result
	err := s.run(ctx, "add_property_image", func(ctx context.Context) (outcome, error) {
		out := outcome{entityID: id, actor: actorID}
		if s.assets == nil {
			return out, domain.Unavailable("asset store", errNoAssetStore)
		}
		if len(data) == 0 {
			return out, domain.ConstraintViolation(EntityProperty, id, "image is empty")
		}
		current, ok := s.store.GetProperty(id)
		if !ok {
			return out, domain.NotFound(EntityProperty, id)
		}
		if current.LandlordID != actorID {
			return out, domain.Forbidden(EntityProperty, id, "only the owning landlord may add images")
		}
		url, err := s.assets.Upload(ctx, data, contentType)
		if err != nil {
			if domain.KindOf(err) == "" {
				err = domain.Unavailable("asset store", err)
			}
			return out, err
		}
		updated, res, err = s.mutateOwnedProperty(ctx, actorID, id, func(p *Property) error {
			p.Images = append(p.Images, url)
			return nil
		})
		if err != nil {
			s.discardUpload(ctx, id, url, err)
		}
		return out, err
	})
	return updated, res, err
}

// discardUpload deletes an uploaded image whose URL did not reach the
// property. A durable store may fail to save after the change was applied in
// memory; the URL is then already referenced and the object must stay.
func (s *Service) discardUpload(ctx context.Context, id, url string, cause error) {
	if domain.Applied(cause) {
		s.logger.Warn("image attached but not yet saved", "entity_id", id, "url", url, "error", cause)
		return
	}
	if current, ok := s.store.GetProperty(id); ok && slices.Contains(current.Images, url) {
		return
	}
	r, ok := s.assets.(assetRemover)
	if !ok {
		return
	}
	if err := r.Remove(ctx, url); err != nil {
		s.logger.Warn("orphaned asset", "url", url, "error", err)
	}
}

// Queries --------------------------------------------------------------------

// QueryProperties returns properties matching an equality filter over indexed fields.
func (s *Service) QueryProperties(f domain.Filter) ([]Property, error) {
	if err := f.Validate(EntityProperty); err != nil {
		return nil, err
	}
	return s.store.QueryProperties(f), nil
}

// QueryRequests returns requests matching an equality filter over indexed fields.
func (s *Service) QueryRequests(f domain.Filter) ([]Request, error) {
	if err := f.Validate(EntityRequest); err != nil {
		return nil, err
	}
	return s.store.QueryRequests(f), nil
}

// QueryShortlists returns shortlist records matching an equality filter over indexed fields.
func (s *Service) QueryShortlists(f domain.Filter) ([]Shortlist, error) {
	if err := f.Validate(EntityShortlist); err != nil {
		return nil, err
	}
	return s.store.QueryShortlists(f), nil
}

// GetRequest returns a request by id.
func (s *Service) GetRequest(id string) (Request, error) {
	r, ok := s.store.GetRequest(id)
	if !ok {
		return Request{}, domain.NotFound(EntityRequest, id)
	}
	return r, nil
}
