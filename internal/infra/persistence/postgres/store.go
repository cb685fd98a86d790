// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics. State lives in a bucketed JSONB table that is rewritten
// inside one database transaction per committed store transaction. A version
// row lets several processes share the table: stale handles reload before each
// transaction and a commit based on an outdated version fails with a conflict.
package postgres

import (
	"context"
	"database/sql"
	"eegrecords/internal/infra/persistence/memory"
	"eegrecords/pkg/domain"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN keeps parity with the configuration defaults.
	DefaultDSN = "postgres://localhost/eegrecords?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	// version the in-memory state reflects, guarded by the memory store's
	// write lock; -1 before the first load.
	version int64
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to DefaultDSN).
// It ensures the snapshot table exists and hydrates the in-memory store from any
// existing snapshot.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db, version: -1}
	opts = append(opts, memory.WithPersister(s.persist), memory.WithSync(s.sync))
	s.Store = memory.NewStore(engine, opts...)
	if err := s.Refresh(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	versionDDL := `CREATE TABLE IF NOT EXISTS state_version (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version BIGINT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, versionDDL); err != nil {
		return fmt.Errorf("ensure state_version table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO state_version(id, version) VALUES($1, $2) ON CONFLICT(id) DO NOTHING`, 1, 0); err != nil {
		return fmt.Errorf("seed state_version: %w", err)
	}
	return nil
}

// sync reloads the buckets when another process committed since the last load.
// The version and the buckets are read in one repeatable-read snapshot.
func (s *Store) sync(ctx context.Context) (memory.Snapshot, bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM state_version WHERE id = 1`).Scan(&version); err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("read state version: %w", err)
	}
	if version == s.version {
		return memory.Snapshot{}, false, nil
	}
	snapshot, err := loadSnapshot(ctx, tx)
	if err != nil {
		return memory.Snapshot{}, false, err
	}
	s.version = version
	return snapshot, true, nil
}

func loadSnapshot(ctx context.Context, tx *sql.Tx) (memory.Snapshot, error) {
	rows, err := tx.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return memory.Snapshot{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	// a concurrent writer holding the row makes this wait, then match nothing
	res, err := tx.ExecContext(ctx, `UPDATE state_version SET version = version + 1 WHERE id = 1 AND version = $1`, s.version)
	if err != nil {
		return fmt.Errorf("bump state version: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("bump state version: %w", err)
	} else if n == 0 {
		return domain.ConflictError{Entity: "state", Key: fmt.Sprintf("version=%d", s.version)}
	}
	for _, bucket := range memory.Buckets() {
		data, err := snapshot.EncodeBucket(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	s.version++
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
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
