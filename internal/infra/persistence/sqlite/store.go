// Package sqlite persists the in-memory store state to a single SQLite table as
// JSON buckets. Every committed transaction rewrites the buckets inside one
// SQLite transaction before the in-memory state is swapped.
//
// Several handles may share one database file. A version row guards the
// buckets: each handle reloads the buckets when the version moved, and a
// commit only lands when the version still matches the one it started from.
package sqlite

import (
	"context"
	"database/sql"
	"eegrecords/internal/infra/persistence/memory"
	"eegrecords/pkg/domain"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "eegrecords.db"

// busyTimeout makes a writer wait for a concurrent process instead of failing with SQLITE_BUSY.
const busyTimeout = "?_pragma=busy_timeout(5000)"

// Store persists the in-memory state to SQLite.
type Store struct {
	*memory.Store
	db *sql.DB
	// version of the buckets the in-memory state reflects; guarded by the
	// memory store's write lock, -1 before the first load.
	version int64
}

// NewStore constructs a snapshotting SQLite-backed persistent store and hydrates
// it from any state already present in the database file.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers and keeps the file lock simple
	db.SetMaxOpenConns(1)
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS state (
			bucket TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS state_version (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL
		)`,
		`INSERT INTO state_version(id, version) VALUES(1, 0) ON CONFLICT(id) DO NOTHING`,
	} {
		if _, err := db.Exec(ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare state tables: %w", err)
		}
	}
	s := &Store{db: db, version: -1}
	opts = append(opts, memory.WithPersister(s.persist), memory.WithSync(s.sync))
	s.Store = memory.NewStore(engine, opts...)
	if err := s.Refresh(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// sync reloads the buckets when another handle committed since the last load.
func (s *Store) sync(ctx context.Context) (memory.Snapshot, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
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

	rows, err := tx.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, false, fmt.Errorf("scan: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return memory.Snapshot{}, false, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("iterate state: %w", err)
	}
	s.version = version
	return snapshot, true, nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx, `UPDATE state_version SET version = version + 1 WHERE id = 1 AND version = ?`, s.version)
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
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.version++
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
