// Package postgres keeps the rental state in Postgres. Transactions run against
// an embedded memory store; after each commit the collections whose JSON
// changed are upserted into one JSONB row per bucket.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"rentalcore/internal/infra/persistence/memory"
	"rentalcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/rentalcore?sslmode=disable"

	// Table holds one row per bucket.
	Table = "rentalcore_state"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a memory store whose commits are mirrored to Postgres.
type Store struct {
	*memory.Store
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	written memory.Written
}

// NewStore connects to dsn (a local default when empty), creates the state
// table if needed and hydrates from it. An unreachable server is reported as
// UpstreamUnavailable.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Store{db: db, now: time.Now, written: memory.Written{}}
	if err := s.init(ctx, engine, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context, engine *domain.RulesEngine, opts []memory.Option) error {
	if err := s.db.PingContext(ctx); err != nil {
		return domain.Unavailable("postgres", fmt.Errorf("ping: %w", err))
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + Table + ` (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", Table, err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM `+Table)
	if err != nil {
		return fmt.Errorf("load %s: %w", Table, err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan %s: %w", Table, err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load %s: %w", Table, err)
	}
	s.Store = memory.NewStore(engine, opts...)
	s.ImportState(snapshot)
	return nil
}

// RunInTransaction commits fn in memory, then writes the changed buckets. A
// write failure is reported as an applied UpstreamUnavailable; the buckets stay pending
// and are retried by the next commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.flush(context.WithoutCancel(ctx)); err != nil {
		return res, domain.NotPersisted("postgres", err)
	}
	return res, nil
}

func (s *Store) flush(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, err := s.written.Pending(s.ExportState())
	if err != nil || len(pending) == 0 {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	stamp := s.now().UTC()
	for _, p := range pending {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+Table+`(bucket,payload,updated_at) VALUES($1,$2,$3)
			 ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`,
			p.Bucket, p.Data, stamp); err != nil {
			return fmt.Errorf("upsert %s: %w", p.Bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.written.Mark(pending)
	return nil
}

// DB exposes the connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the function used to open connections and returns a
// restore function. Tests use it to install a stub driver.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
