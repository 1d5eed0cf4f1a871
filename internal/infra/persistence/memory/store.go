// Package memory provides the in-memory implementation of the rental entity
// store. It is authoritative for the durable backends, which wrap it and
// persist its snapshot after every commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentalcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// User aliases domain.User for in-memory persistence operations.
	User = domain.User
	// Property aliases domain.Property.
	Property = domain.Property
	// Request aliases domain.Request.
	Request = domain.Request
	// Shortlist aliases domain.Shortlist.
	Shortlist = domain.Shortlist
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	users      map[string]User
	properties map[string]Property
	requests   map[string]Request
	shortlists map[string]Shortlist
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Users      map[string]User      `json:"users" bson:"users"`
	Properties map[string]Property  `json:"properties" bson:"properties"`
	Requests   map[string]Request   `json:"requests" bson:"requests"`
	Shortlists map[string]Shortlist `json:"shortlists" bson:"shortlists"`
}

func newMemoryState() memoryState {
	return memoryState{
		users:      make(map[string]User),
		properties: make(map[string]Property),
		requests:   make(map[string]Request),
		shortlists: make(map[string]Shortlist),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Users:      make(map[string]User, len(state.users)),
		Properties: make(map[string]Property, len(state.properties)),
		Requests:   make(map[string]Request, len(state.requests)),
		Shortlists: make(map[string]Shortlist, len(state.shortlists)),
	}
	for k, v := range state.users {
		s.Users[k] = v
	}
	for k, v := range state.properties {
		s.Properties[k] = cloneProperty(v)
	}
	for k, v := range state.requests {
		s.Requests[k] = v
	}
	for k, v := range state.shortlists {
		s.Shortlists[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Users {
		state.users[k] = v
	}
	for k, v := range s.Properties {
		state.properties[k] = cloneProperty(v)
	}
	for k, v := range s.Requests {
		state.requests[k] = v
	}
	for k, v := range s.Shortlists {
		state.shortlists[k] = v
	}
	return state
}

// normalizeSnapshot repairs records loaded from older or hand-edited
// snapshots: map keys win over embedded ids, list fields are never nil and
// shortlist duplicates for the same pair collapse to the oldest record.
func normalizeSnapshot(snapshot Snapshot) Snapshot {
	for id, u := range snapshot.Users {
		u.ID = id
		snapshot.Users[id] = u
	}
	for id, p := range snapshot.Properties {
		p.ID = id
		p.Features = domain.NormalizeFeatures(p.Features)
		if p.Images == nil {
			p.Images = []string{}
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = p.CreatedAt
		}
		snapshot.Properties[id] = p
	}
	for id, r := range snapshot.Requests {
		r.ID = id
		if r.Status == "" {
			r.Status = domain.RequestStatusPending
		}
		snapshot.Requests[id] = r
	}
	seen := make(map[string]Shortlist, len(snapshot.Shortlists))
	for id, sl := range snapshot.Shortlists {
		sl.ID = id
		snapshot.Shortlists[id] = sl
		key := pairKey(sl.TenantID, sl.PropertyID)
		prev, dup := seen[key]
		if !dup {
			seen[key] = sl
			continue
		}
		if sl.CreatedAt.Before(prev.CreatedAt) || (sl.CreatedAt.Equal(prev.CreatedAt) && sl.ID < prev.ID) {
			delete(snapshot.Shortlists, prev.ID)
			seen[key] = sl
		} else {
			delete(snapshot.Shortlists, id)
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(snapshotFromMemoryState(s))
}

func cloneProperty(p Property) Property {
	cp := p
	cp.Features = append([]string(nil), p.Features...)
	cp.Images = append([]string(nil), p.Images...)
	if cp.Features == nil {
		cp.Features = []string{}
	}
	if cp.Images == nil {
		cp.Images = []string{}
	}
	return cp
}

func pairKey(tenantID, propertyID string) string {
	return tenantID + "\x00" + propertyID
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// Store provides an in-memory transactional store for the rental domain.
type Store struct {
	mu        sync.RWMutex
	state     memoryState
	engine    *RulesEngine
	nowFn     func() time.Time
	listeners map[uint64]domain.ChangeListener
	nextID    uint64
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:     newMemoryState(),
		engine:    engine,
		nowFn:     func() time.Time { return time.Now().UTC() },
		listeners: make(map[uint64]domain.ChangeListener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot. Watchers
// are not notified; callers hydrate before exposing the store.
func (s *Store) ImportState(snapshot Snapshot) {
	snapshot = normalizeSnapshot(snapshotFromMemoryState(memoryStateFromSnapshot(snapshot)))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// Watch registers a listener for committed changes. Listeners are invoked
// while the write lock is held, in commit order, so they must return quickly
// and must not call back into the store.
func (s *Store) Watch(listener domain.ChangeListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// transaction represents a mutation set applied to a private copy of the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only when fn succeeds and no rule
// blocks; listeners then observe the recorded changes.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	if len(tx.changes) > 0 {
		s.notify(tx.changes)
	}
	return result, nil
}

func (s *Store) notify(changes []Change) {
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		batch := make([]Change, len(changes))
		copy(batch, changes)
		s.listeners[id](batch)
	}
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	view := newTransactionView(&snapshot)
	return fn(view)
}

// View helpers ---------------------------------------------------------------

func (v transactionView) ListUsers() []User { return listUsers(v.state) }

func (v transactionView) ListProperties() []Property {
	return queryProperties(v.state, domain.Filter{})
}

func (v transactionView) ListRequests() []Request { return queryRequests(v.state, domain.Filter{}) }

func (v transactionView) ListShortlists() []Shortlist {
	return queryShortlists(v.state, domain.Filter{})
}

func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	return u, ok
}

func (v transactionView) FindProperty(id string) (Property, bool) {
	p, ok := v.state.properties[id]
	if !ok {
		return Property{}, false
	}
	return cloneProperty(p), true
}

func (v transactionView) FindRequest(id string) (Request, bool) {
	r, ok := v.state.requests[id]
	return r, ok
}

func (v transactionView) FindShortlist(id string) (Shortlist, bool) {
	sl, ok := v.state.shortlists[id]
	return sl, ok
}

func (v transactionView) QueryProperties(f domain.Filter) []Property {
	return queryProperties(v.state, f)
}

func (v transactionView) QueryRequests(f domain.Filter) []Request { return queryRequests(v.state, f) }

func (v transactionView) QueryShortlists(f domain.Filter) []Shortlist {
	return queryShortlists(v.state, f)
}

// Results are ordered by creation time, then id, so snapshots are stable.
func listUsers(state *memoryState) []User {
	out := make([]User, 0, len(state.users))
	for _, u := range state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].Base, out[j].Base) })
	return out
}

func queryProperties(state *memoryState, f domain.Filter) []Property {
	out := make([]Property, 0)
	for _, p := range state.properties {
		if f.Matches(p) {
			out = append(out, cloneProperty(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].Base, out[j].Base) })
	return out
}

func queryRequests(state *memoryState, f domain.Filter) []Request {
	out := make([]Request, 0)
	for _, r := range state.requests {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].Base, out[j].Base) })
	return out
}

func queryShortlists(state *memoryState, f domain.Filter) []Shortlist {
	out := make([]Shortlist, 0)
	for _, sl := range state.shortlists {
		if f.Matches(sl) {
			out = append(out, sl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].Base, out[j].Base) })
	return out
}

func before(a, b domain.Base) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Transaction operations ------------------------------------------------------

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) FindUser(id string) (User, bool) {
	return transactionView{state: &tx.state}.FindUser(id)
}

func (tx *transaction) FindProperty(id string) (Property, bool) {
	return transactionView{state: &tx.state}.FindProperty(id)
}

func (tx *transaction) FindRequest(id string) (Request, bool) {
	return transactionView{state: &tx.state}.FindRequest(id)
}

func (tx *transaction) FindShortlist(id string) (Shortlist, bool) {
	return transactionView{state: &tx.state}.FindShortlist(id)
}

// CreateUser adds a directory entry.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = tx.store.newID()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, domain.ConstraintViolation(domain.EntityUser, u.ID, "user already exists")
	}
	u.Email = strings.TrimSpace(u.Email)
	u.CreatedAt = tx.now
	tx.state.users[u.ID] = u
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: u})
	return u, nil
}

// CreateProperty stores a new property, stamping both timestamps.
func (tx *transaction) CreateProperty(p Property) (Property, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.properties[p.ID]; exists {
		return Property{}, domain.ConstraintViolation(domain.EntityProperty, p.ID, "property already exists")
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	p = cloneProperty(p)
	tx.state.properties[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityProperty, Action: domain.ActionCreate, After: cloneProperty(p)})
	return cloneProperty(p), nil
}

// UpdateProperty mutates a property and stamps updatedAt. Changes to
// immutable fields are left in place for the rules engine to reject.
func (tx *transaction) UpdateProperty(id string, mutator func(*Property) error) (Property, error) {
	current, ok := tx.state.properties[id]
	if !ok {
		return Property{}, domain.NotFound(domain.EntityProperty, id)
	}
	before := cloneProperty(current)
	current = cloneProperty(current)
	if err := mutator(&current); err != nil {
		return Property{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.properties[id] = cloneProperty(current)
	tx.recordChange(Change{Entity: domain.EntityProperty, Action: domain.ActionUpdate, Before: before, After: cloneProperty(current)})
	return cloneProperty(current), nil
}

// DeleteProperty removes a property. Requests and shortlists referencing it
// are kept and surface as dangling references in views.
func (tx *transaction) DeleteProperty(id string) error {
	current, ok := tx.state.properties[id]
	if !ok {
		return domain.NotFound(domain.EntityProperty, id)
	}
	delete(tx.state.properties, id)
	tx.recordChange(Change{Entity: domain.EntityProperty, Action: domain.ActionDelete, Before: cloneProperty(current)})
	return nil
}

// CreateRequest stores a new request.
func (tx *transaction) CreateRequest(r Request) (Request, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.requests[r.ID]; exists {
		return Request{}, domain.ConstraintViolation(domain.EntityRequest, r.ID, "request already exists")
	}
	if r.Status == "" {
		r.Status = domain.RequestStatusPending
	}
	r.CreatedAt = tx.now
	tx.state.requests[r.ID] = r
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionCreate, After: r})
	return r, nil
}

// UpdateRequest mutates a request. Requests carry no updatedAt stamp.
func (tx *transaction) UpdateRequest(id string, mutator func(*Request) error) (Request, error) {
	current, ok := tx.state.requests[id]
	if !ok {
		return Request{}, domain.NotFound(domain.EntityRequest, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Request{}, err
	}
	current.ID = id
	tx.state.requests[id] = current
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteRequest removes a request.
func (tx *transaction) DeleteRequest(id string) error {
	current, ok := tx.state.requests[id]
	if !ok {
		return domain.NotFound(domain.EntityRequest, id)
	}
	delete(tx.state.requests, id)
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateShortlist stores a new shortlist record.
func (tx *transaction) CreateShortlist(sl Shortlist) (Shortlist, error) {
	if sl.ID == "" {
		sl.ID = tx.store.newID()
	}
	if _, exists := tx.state.shortlists[sl.ID]; exists {
		return Shortlist{}, domain.ConstraintViolation(domain.EntityShortlist, sl.ID, "shortlist already exists")
	}
	sl.CreatedAt = tx.now
	tx.state.shortlists[sl.ID] = sl
	tx.recordChange(Change{Entity: domain.EntityShortlist, Action: domain.ActionCreate, After: sl})
	return sl, nil
}

// DeleteShortlist removes a shortlist record.
func (tx *transaction) DeleteShortlist(id string) error {
	current, ok := tx.state.shortlists[id]
	if !ok {
		return domain.NotFound(domain.EntityShortlist, id)
	}
	delete(tx.state.shortlists, id)
	tx.recordChange(Change{Entity: domain.EntityShortlist, Action: domain.ActionDelete, Before: current})
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetUser retrieves a user by ID from committed state.
func (s *Store) GetUser(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	return u, ok
}

// ListUsers returns all users from committed state.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUsers(&s.state)
}

// GetProperty retrieves a property by ID.
func (s *Store) GetProperty(id string) (Property, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.properties[id]
	if !ok {
		return Property{}, false
	}
	return cloneProperty(p), true
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(id string) (Request, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.requests[id]
	return r, ok
}

// GetShortlist retrieves a shortlist record by ID.
func (s *Store) GetShortlist(id string) (Shortlist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.state.shortlists[id]
	return sl, ok
}

// QueryProperties returns committed properties matching the filter.
func (s *Store) QueryProperties(f domain.Filter) []Property {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryProperties(&s.state, f)
}

// QueryRequests returns committed requests matching the filter.
func (s *Store) QueryRequests(f domain.Filter) []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRequests(&s.state, f)
}

// QueryShortlists returns committed shortlist records matching the filter.
func (s *Store) QueryShortlists(f domain.Filter) []Shortlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryShortlists(&s.state, f)
}
