package core

import (
	"context"
	"eegrecords/internal/blob"
	"eegrecords/internal/infra/persistence/memory"
	"eegrecords/internal/logger"
	"eegrecords/pkg/domain"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for seeding reference times.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder installs an operation recorder such as *Metrics.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithCacheTTL enables caching of list and summary queries. Zero disables it.
// Cached entries are tied to the store revision, so commits made by another
// service or process on the same backend are seen on the next read.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// Service exposes the interactive operations and the seeding orchestrator over
// a persistent store and a file store.
type Service struct {
	store   PersistentStore
	files   *FileStore
	clock   Clock
	logger  *slog.Logger
	metrics MetricsRecorder

	cacheTTL time.Duration
	cache    *cache.Cache
	// generation is bumped after every committed write. It stamps cached reads
	// for stores that do not report a revision.
	generation atomic.Uint64
}

// NewService wires a service over the given store and file store.
func NewService(store PersistentStore, files *FileStore, opts ...Option) *Service {
	s := newService(opts)
	s.store = store
	s.files = files
	return s
}

// NewInMemoryService builds a service over a memory store and a memory blob
// backend. The store shares the service clock.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	s := newService(opts)
	s.store = memory.NewStore(engine, memory.WithClock(func() time.Time { return s.clock.Now().UTC() }))
	s.files = NewFileStore(blob.NewMemory())
	return s
}

func newService(opts []Option) *Service {
	s := &Service{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  logger.Nop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheTTL > 0 {
		// no cleanup interval: expired entries are dropped lazily on read
		s.cache = cache.New(s.cacheTTL, 0)
	}
	return s
}

// Store returns the underlying persistent store.
func (s *Service) Store() PersistentStore { return s.store }

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		s.logger.Error("operation failed", "op", op, "error", err)
		return err
	}
	s.logger.Debug("operation completed", "op", op, "duration", elapsed)
	return nil
}

func (s *Service) logResult(op string, res Result) {
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityBlock {
			continue
		}
		s.logger.Warn("rule violation", "op", op, "rule", v.Rule, "entity", v.Entity, "id", v.EntityID, "message", v.Message)
	}
}

// write runs a store transaction for op and invalidates cached reads once it commits.
func (s *Service) write(ctx context.Context, op string, fn func(Transaction) error) (Result, error) {
	var res Result
	err := s.run(ctx, op, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, fn)
		if err != nil {
			return err
		}
		s.invalidate()
		s.logResult(op, res)
		return nil
	})
	return res, err
}

// CreatePatient inserts a patient. A patient with the same full name yields a ConflictError.
func (s *Service) CreatePatient(ctx context.Context, p Patient) (Patient, Result, error) {
	var created Patient
	res, err := s.write(ctx, "create_patient", func(tx Transaction) error {
		var err error
		created, err = tx.CreatePatient(p)
		return err
	})
	return created, res, err
}

// UpdatePatient applies mutator to an existing patient.
func (s *Service) UpdatePatient(ctx context.Context, id string, mutator func(*Patient) error) (Patient, Result, error) {
	var updated Patient
	res, err := s.write(ctx, "update_patient", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdatePatient(id, mutator)
		return err
	})
	return updated, res, err
}

// CreateSession inserts a session for an existing patient.
func (s *Service) CreateSession(ctx context.Context, session Session) (Session, Result, error) {
	var created Session
	res, err := s.write(ctx, "create_session", func(tx Transaction) error {
		var err error
		created, err = tx.CreateSession(session)
		return err
	})
	return created, res, err
}

// UpdateSession applies mutator to an existing session.
func (s *Service) UpdateSession(ctx context.Context, id string, mutator func(*Session) error) (Session, Result, error) {
	var updated Session
	res, err := s.write(ctx, "update_session", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateSession(id, mutator)
		return err
	})
	return updated, res, err
}

// AttachFile stores data and records it as a result file of the session.
// Bytes written for a transaction that does not commit are removed again.
func (s *Service) AttachFile(ctx context.Context, sessionID string, data []byte, name, description string) (ResultFile, Result, error) {
	if err := domain.ValidateResultFileName(name); err != nil {
		return ResultFile{}, Result{}, err
	}
	var created ResultFile
	writes := s.files.begin()
	res, err := s.write(ctx, "attach_file", func(tx Transaction) error {
		if _, ok := tx.FindSession(sessionID); !ok {
			return domain.MissingOwner(domain.EntityResultFile, "session_id", domain.EntitySession, sessionID)
		}
		handle, err := writes.store(ctx, FileKindResult, data, name)
		if err != nil {
			return err
		}
		created, err = tx.CreateResultFile(ResultFile{SessionID: sessionID, File: handle, Description: description})
		return err
	})
	if err != nil {
		s.compensate(ctx, writes)
	}
	return created, res, err
}

// Upload carries bytes to be stored alongside a record.
type Upload struct {
	Name string
	Data []byte
}

// AnalysisInput describes an analysis result to attach to a session.
type AnalysisInput struct {
	SessionID     string
	ModelName     string
	EmotionLabel  EmotionLabel
	Confidence    float64
	Metrics       map[string]any
	Notes         string
	Visualization *Upload
}

// AttachAnalysis records an analysis result, storing the optional visualization first.
func (s *Service) AttachAnalysis(ctx context.Context, in AnalysisInput) (AnalysisResult, Result, error) {
	record := AnalysisResult{
		SessionID:    in.SessionID,
		ModelName:    in.ModelName,
		EmotionLabel: in.EmotionLabel,
		Confidence:   in.Confidence,
		Metrics:      in.Metrics,
		Notes:        in.Notes,
	}
	if err := domain.ValidateAnalysisResult(record); err != nil {
		return AnalysisResult{}, Result{}, err
	}
	if in.Visualization != nil {
		if err := domain.ValidateVisualizationName(in.Visualization.Name); err != nil {
			return AnalysisResult{}, Result{}, err
		}
	}
	var created AnalysisResult
	writes := s.files.begin()
	res, err := s.write(ctx, "attach_analysis", func(tx Transaction) error {
		if _, ok := tx.FindSession(in.SessionID); !ok {
			return domain.MissingOwner(domain.EntityAnalysisResult, "session_id", domain.EntitySession, in.SessionID)
		}
		if in.Visualization != nil {
			handle, err := writes.store(ctx, FileKindVisualization, in.Visualization.Data, in.Visualization.Name)
			if err != nil {
				return err
			}
			record.Visualization = &handle
		}
		var err error
		created, err = tx.CreateAnalysisResult(record)
		return err
	})
	if err != nil {
		s.compensate(ctx, writes)
	}
	return created, res, err
}

// DeletePatient removes a patient and everything it owns. Stored bytes of the
// removed records are deleted after the commit on a best-effort basis.
func (s *Service) DeletePatient(ctx context.Context, id string) (Result, error) {
	var handles []FileHandle
	res, err := s.write(ctx, "delete_patient", func(tx Transaction) error {
		view := tx.Snapshot()
		for _, session := range view.SessionsForPatient(id) {
			handles = append(handles, handlesForSession(view, session.ID)...)
		}
		return tx.DeletePatient(id)
	})
	if err == nil {
		s.removeBlobs(ctx, handles)
	}
	return res, err
}

// DeleteSession removes a session with its files and analyses.
func (s *Service) DeleteSession(ctx context.Context, id string) (Result, error) {
	var handles []FileHandle
	res, err := s.write(ctx, "delete_session", func(tx Transaction) error {
		handles = handlesForSession(tx.Snapshot(), id)
		return tx.DeleteSession(id)
	})
	if err == nil {
		s.removeBlobs(ctx, handles)
	}
	return res, err
}

// DeleteResultFile removes a single result file.
func (s *Service) DeleteResultFile(ctx context.Context, id string) (Result, error) {
	var handles []FileHandle
	res, err := s.write(ctx, "delete_result_file", func(tx Transaction) error {
		if f, ok := tx.FindResultFile(id); ok {
			handles = append(handles, f.File)
		}
		return tx.DeleteResultFile(id)
	})
	if err == nil {
		s.removeBlobs(ctx, handles)
	}
	return res, err
}

// DeleteAnalysisResult removes a single analysis result.
func (s *Service) DeleteAnalysisResult(ctx context.Context, id string) (Result, error) {
	var handles []FileHandle
	res, err := s.write(ctx, "delete_analysis_result", func(tx Transaction) error {
		if a, ok := tx.FindAnalysisResult(id); ok && a.Visualization != nil {
			handles = append(handles, *a.Visualization)
		}
		return tx.DeleteAnalysisResult(id)
	})
	if err == nil {
		s.removeBlobs(ctx, handles)
	}
	return res, err
}

func handlesForSession(view TransactionView, sessionID string) []FileHandle {
	var handles []FileHandle
	for _, f := range view.FilesForSession(sessionID) {
		handles = append(handles, f.File)
	}
	for _, a := range view.AnalysesForSession(sessionID) {
		if a.Visualization != nil {
			handles = append(handles, *a.Visualization)
		}
	}
	return handles
}

func (s *Service) removeBlobs(ctx context.Context, handles []FileHandle) {
	ctx = context.WithoutCancel(ctx)
	for _, h := range handles {
		if err := s.files.Remove(ctx, h); err != nil {
			s.logger.Warn("stored file left behind", "key", h.Key, "error", err)
		}
	}
}

func (s *Service) compensate(ctx context.Context, writes *writeLog) {
	n := writes.written()
	if n == 0 {
		return
	}
	if err := writes.rollback(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("compensating file removal failed", "files", n, "error", err)
		return
	}
	s.logger.Debug("removed files of rolled back transaction", "files", n)
}

// OpenFile streams the bytes behind a stored handle.
func (s *Service) OpenFile(ctx context.Context, handle FileHandle) (blob.Info, io.ReadCloser, error) {
	return s.files.Open(ctx, handle)
}

// ResultFileURL returns a time-limited download URL for a result file.
// A non-positive expiry selects DefaultURLExpiry.
func (s *Service) ResultFileURL(ctx context.Context, id string, expiry time.Duration) (string, error) {
	f, err := s.GetResultFile(ctx, id)
	if err != nil {
		return "", err
	}
	return s.files.URL(ctx, f.File, expiry)
}

// FileExists reports whether a handle resolves to stored bytes.
func (s *Service) FileExists(ctx context.Context, handle FileHandle) (bool, error) {
	return s.files.Exists(ctx, handle)
}
