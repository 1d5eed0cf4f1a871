package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateUser(User) (User, error)
	CreateProperty(Property) (Property, error)
	UpdateProperty(id string, mutator func(*Property) error) (Property, error)
	DeleteProperty(id string) error
	CreateRequest(Request) (Request, error)
	UpdateRequest(id string, mutator func(*Request) error) (Request, error)
	DeleteRequest(id string) error
	CreateShortlist(Shortlist) (Shortlist, error)
	DeleteShortlist(id string) error
	FindUser(id string) (User, bool)
	FindProperty(id string) (Property, bool)
	FindRequest(id string) (Request, bool)
	FindShortlist(id string) (Shortlist, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	QueryProperties(Filter) []Property
	QueryRequests(Filter) []Request
	QueryShortlists(Filter) []Shortlist
}

// ChangeListener receives the changes of each committed transaction, in
// commit order. Listeners run on the committing goroutine and must not block
// or call back into the store.
type ChangeListener func(changes []Change)

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Watch(listener ChangeListener) (cancel func())
	GetUser(id string) (User, bool)
	GetProperty(id string) (Property, bool)
	GetRequest(id string) (Request, bool)
	GetShortlist(id string) (Shortlist, bool)
	ListUsers() []User
	QueryProperties(Filter) []Property
	QueryRequests(Filter) []Request
	QueryShortlists(Filter) []Shortlist
}
