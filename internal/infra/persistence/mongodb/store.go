// Package mongodb provides a MongoDB-backed persistent store. Transactions run
// against the embedded memory store; each committed state is written to a
// "state" collection holding one document per bucket.
package mongodb

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"rentalcore/internal/infra/persistence/memory"
	"rentalcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultURI        = "mongodb://localhost:27017"
	defaultDatabase   = "rentalcore"
	stateCollectionID = "state"
)

// stateCollection is the subset of *mongo.Collection used by the store.
type stateCollection interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

type stateDocument struct {
	Bucket  string `bson:"_id"`
	Payload []byte `bson:"payload"`
}

// Store persists state to MongoDB while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	client *mongo.Client
	coll   stateCollection

	mu      sync.Mutex
	written memory.Written
}

// NewStore connects to uri, selects database and hydrates from the state collection.
func NewStore(ctx context.Context, uri, database string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if uri == "" {
		uri = defaultURI
	}
	if database == "" {
		database = defaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, domain.Unavailable("mongo", fmt.Errorf("ping: %w", err))
	}
	s, err := newStore(ctx, client.Database(database).Collection(stateCollectionID), engine, opts...)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s.client = client
	return s, nil
}

func newStore(ctx context.Context, coll stateCollection, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	snapshot, err := loadSnapshot(ctx, coll)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine, opts...)
	mem.ImportState(snapshot)
	return &Store{Store: mem, coll: coll, written: memory.Written{}}, nil
}

func loadSnapshot(ctx context.Context, coll stateCollection) (memory.Snapshot, error) {
	cursor, err := coll.Find(ctx, bson.M{})
	if err != nil {
		return memory.Snapshot{}, domain.Unavailable("mongo", fmt.Errorf("find state: %w", err))
	}
	var docs []stateDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return memory.Snapshot{}, fmt.Errorf("decode state documents: %w", err)
	}
	var snapshot memory.Snapshot
	for _, doc := range docs {
		if err := snapshot.DecodeBucket(doc.Bucket, doc.Payload); err != nil {
			return memory.Snapshot{}, err
		}
	}
	return snapshot, nil
}

// RunInTransaction applies fn within a transaction, then upserts the bucket
// documents it changed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(context.WithoutCancel(ctx)); err != nil {
		return res, domain.NotPersisted("mongo", err)
	}
	return res, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, err := s.written.Pending(s.ExportState())
	if err != nil {
		return err
	}
	upsert := options.Replace().SetUpsert(true)
	for _, p := range pending {
		doc := stateDocument{Bucket: p.Bucket, Payload: p.Data}
		if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": p.Bucket}, doc, upsert); err != nil {
			return fmt.Errorf("upsert %s: %w", p.Bucket, err)
		}
		s.written.Mark([]memory.BucketPayload{p})
	}
	return nil
}

// Close disconnects the client when the store owns one.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
