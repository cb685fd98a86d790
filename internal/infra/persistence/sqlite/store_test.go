package sqlite

import (
	"context"
	"eegrecords/internal/infra/persistence/memory"
	"eegrecords/pkg/domain"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newPatient(name string) domain.Patient {
	return domain.Patient{FullName: name, BirthDate: time.Date(1985, 1, 2, 0, 0, 0, 0, time.UTC)}
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	var sessionID string
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		p, e := tx.CreatePatient(newPatient("Persist"))
		if e != nil {
			return e
		}
		s, e := tx.CreateSession(domain.Session{PatientID: p.ID, StartedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), DurationMinutes: 30, Technician: "T"})
		sessionID = s.ID
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if got := len(reloaded.ListPatients()); got != 1 {
		t.Fatalf("expected 1 patient, got %d", got)
	}
	sessions := reloaded.ListSessions()
	if len(sessions) != 1 || sessions[0].ID != sessionID {
		t.Fatalf("expected session %s to survive reload, got %+v", sessionID, sessions)
	}
}

func TestSQLiteStoreFailedTransactionLeavesDiskUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	boom := errors.New("boom")
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, e := tx.CreatePatient(newPatient("Ghost")); e != nil {
			return e
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count state rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted buckets, got %d", count)
	}
	_ = store.Close()
}

func TestSQLiteStorePersistFailureAbortsCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil, memory.WithClock(func() time.Time { return time.Unix(0, 0).UTC() }))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.db.Exec(`DROP TABLE state`); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreatePatient(newPatient("Lost"))
		return e
	})
	if err == nil {
		t.Fatalf("expected persist error")
	}
	if len(store.ListPatients()) != 0 {
		t.Fatalf("expected in-memory state to stay unchanged when persistence fails")
	}
	_ = store.Close()
}

func TestSQLiteStoreRejectsCorruptBucket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.db.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?)`, memory.BucketPatients, []byte("{")); err != nil {
		t.Fatalf("insert corrupt bucket: %v", err)
	}
	_ = store.Close()
	if _, err := NewStore(path, nil); err == nil {
		t.Fatalf("expected decode error for corrupt bucket")
	}
}

func TestSQLiteStoreHandlesShareOneDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	b, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("second handle: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	create := func(store *Store, name string) error {
		_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, e := tx.CreatePatient(newPatient(name))
			return e
		})
		return err
	}

	if err := create(a, "Same"); err != nil {
		t.Fatalf("a creates Same: %v", err)
	}
	if err := create(b, "Same"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("b must see a's Same and conflict, got %v", err)
	}
	if err := create(b, "OnlyB"); err != nil {
		t.Fatalf("b creates OnlyB: %v", err)
	}
	if err := create(a, "OnlyA"); err != nil {
		t.Fatalf("a creates OnlyA: %v", err)
	}

	var names []string
	if err := b.View(ctx, func(view domain.TransactionView) error {
		for _, p := range view.ListPatients() {
			names = append(names, p.FullName)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if want := []string{"OnlyA", "OnlyB", "Same"}; !equalNames(names, want) {
		t.Fatalf("expected %v through the second handle, got %v", want, names)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	names = names[:0]
	for _, p := range reopened.ListPatients() {
		names = append(names, p.FullName)
	}
	if want := []string{"OnlyA", "OnlyB", "Same"}; !equalNames(names, want) {
		t.Fatalf("expected %v after reopen, got %v", want, names)
	}
}

func TestSQLiteStoreStaleCommitConflicts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stale.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	// another writer commits between this handle's sync and its persist
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, e := store.db.ExecContext(ctx, `UPDATE state_version SET version = version + 1`); e != nil {
			return e
		}
		_, e := tx.CreatePatient(newPatient("Late"))
		return e
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for a stale commit, got %v", err)
	}
	if len(store.ListPatients()) != 0 {
		t.Fatalf("conflicting commit must not reach memory")
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, e := tx.CreatePatient(newPatient("Retry"))
		return e
	}); err != nil {
		t.Fatalf("commit after resync: %v", err)
	}
}

func TestSQLiteStoreRevisionFollowsOtherHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "revision.db")
	a, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	b, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("second handle: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	before, err := a.Revision(ctx)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if again, _ := a.Revision(ctx); again != before {
		t.Fatalf("revision moved without a commit: %d -> %d", before, again)
	}
	if _, err := b.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, e := tx.CreatePatient(newPatient("FromB"))
		return e
	}); err != nil {
		t.Fatalf("b commit: %v", err)
	}
	after, err := a.Revision(ctx)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if after == before {
		t.Fatalf("revision must move after another handle commits")
	}
	if len(a.ListPatients()) != 1 {
		t.Fatalf("expected b's patient visible through a")
	}
}

func equalNames(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
