// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments and as the transactional engine
// underneath the durable backends.
package memory

import (
	"context"
	"eegrecords/pkg/domain"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Patient aliases domain.Patient for in-memory persistence operations.
	Patient = domain.Patient
	// Session aliases domain.Session.
	Session = domain.Session
	// ResultFile aliases domain.ResultFile.
	ResultFile = domain.ResultFile
	// AnalysisResult aliases domain.AnalysisResult.
	AnalysisResult = domain.AnalysisResult
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

// PersistFunc durably records a committed snapshot. It runs while the store's
// write lock is held; an error aborts the commit and leaves the previous state in place.
type PersistFunc func(ctx context.Context, snapshot Snapshot) error

// SyncFunc reports the durable state when another writer committed since the
// last sync or persist. It returns changed=false when the local copy is current.
// It runs while the store's write lock is held.
type SyncFunc func(ctx context.Context) (snapshot Snapshot, changed bool, err error)

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides identifier allocation.
func WithIDGenerator(next func() string) Option {
	return func(s *Store) {
		if next != nil {
			s.idFn = next
		}
	}
}

// WithPersister installs a commit hook used by durable backends.
func WithPersister(fn PersistFunc) Option {
	return func(s *Store) { s.persist = fn }
}

// WithSync installs a hook that refreshes the state from a shared backend
// before every transaction and view.
func WithSync(fn SyncFunc) Option {
	return func(s *Store) { s.sync = fn }
}

// Store provides an in-memory transactional store for the core domain.
// Transactions hold the write lock for their whole duration, which makes them
// serializable: two concurrent upserts on the same natural key can never both
// observe the key as absent.
type Store struct {
	mu      sync.RWMutex
	state   memoryState
	engine  *RulesEngine
	nowFn   func() time.Time
	idFn    func() string
	persist PersistFunc
	sync    SyncFunc
	// revision counts state swaps from commits and syncs.
	revision uint64
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// refreshLocked applies the sync hook. Callers hold the write lock.
func (s *Store) refreshLocked(ctx context.Context) error {
	if s.sync == nil {
		return nil
	}
	snapshot, changed, err := s.sync(ctx)
	if err != nil {
		return fmt.Errorf("sync state: %w", err)
	}
	if changed {
		s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
		s.revision++
	}
	return nil
}

// Refresh pulls state committed by other writers sharing the backend. It is a
// no-op for stores without a sync hook.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

// Revision syncs with the backend and returns a counter that moves whenever
// the visible state changes, whichever handle committed the change.
func (s *Store) Revision(ctx context.Context) (uint64, error) {
	if s.sync != nil {
		if err := s.Refresh(ctx); err != nil {
			return 0, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, nil
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListPatients returns all patients ordered by full name.
func (v transactionView) ListPatients() []Patient { return patientsOf(v.state) }

// ListSessions returns all sessions, newest first.
func (v transactionView) ListSessions() []Session { return sessionsOf(v.state, "") }

// ListResultFiles returns all result files, most recently uploaded first.
func (v transactionView) ListResultFiles() []ResultFile { return filesOf(v.state, "") }

// ListAnalysisResults returns all analysis results, most recent first.
func (v transactionView) ListAnalysisResults() []AnalysisResult { return analysesOf(v.state, "") }

// FindPatient retrieves a patient by ID from the snapshot.
func (v transactionView) FindPatient(id string) (Patient, bool) {
	p, ok := v.state.patients[id]
	if !ok {
		return Patient{}, false
	}
	return clonePatient(p), true
}

// FindSession retrieves a session by ID from the snapshot.
func (v transactionView) FindSession(id string) (Session, bool) {
	s, ok := v.state.sessions[id]
	if !ok {
		return Session{}, false
	}
	return cloneSession(s), true
}

// SessionsForPatient returns the patient's sessions, newest first.
func (v transactionView) SessionsForPatient(patientID string) []Session {
	if patientID == "" {
		return nil
	}
	return sessionsOf(v.state, patientID)
}

// FilesForSession returns the session's files, most recently uploaded first.
func (v transactionView) FilesForSession(sessionID string) []ResultFile {
	if sessionID == "" {
		return nil
	}
	return filesOf(v.state, sessionID)
}

// AnalysesForSession returns the session's analysis results, most recent first.
func (v transactionView) AnalysesForSession(sessionID string) []AnalysisResult {
	if sessionID == "" {
		return nil
	}
	return analysesOf(v.state, sessionID)
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn, the rules engine and the
// optional persister all succeed. With a sync hook the copy starts from the
// latest durable state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(ctx); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("transaction aborted: %w", err)
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

	if s.persist != nil {
		if err := s.persist(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, fmt.Errorf("persist snapshot: %w", err)
		}
	}

	s.state = tx.state
	s.revision++
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if s.sync != nil {
		if err := s.Refresh(ctx); err != nil {
			return err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) newID() string { return tx.store.idFn() }

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// GetPatient returns a patient by id from the committed state.
func (s *Store) GetPatient(id string) (Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.patients[id]
	if !ok {
		return Patient{}, false
	}
	return clonePatient(p), true
}

// ListPatients returns committed patients ordered by full name.
func (s *Store) ListPatients() []Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return patientsOf(&s.state)
}

// ListSessions returns committed sessions, newest first.
func (s *Store) ListSessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sessionsOf(&s.state, "")
}

// ListResultFiles returns committed result files.
func (s *Store) ListResultFiles() []ResultFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filesOf(&s.state, "")
}

// ListAnalysisResults returns committed analysis results.
func (s *Store) ListAnalysisResults() []AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return analysesOf(&s.state, "")
}
