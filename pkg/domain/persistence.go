package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView

	FindPatient(id string) (Patient, bool)
	FindPatientByKey(key PatientKey) (Patient, bool)
	CreatePatient(Patient) (Patient, error)
	UpdatePatient(id string, mutator func(*Patient) error) (Patient, error)
	DeletePatient(id string) error

	FindSession(id string) (Session, bool)
	FindSessionByKey(key SessionKey) (Session, bool)
	CreateSession(Session) (Session, error)
	UpdateSession(id string, mutator func(*Session) error) (Session, error)
	DeleteSession(id string) error

	FindResultFile(id string) (ResultFile, bool)
	HasPlaceholderFile(sessionID string) bool
	CreateResultFile(ResultFile) (ResultFile, error)
	UpdateResultFile(id string, mutator func(*ResultFile) error) (ResultFile, error)
	DeleteResultFile(id string) error

	FindAnalysisResult(id string) (AnalysisResult, bool)
	CreateAnalysisResult(AnalysisResult) (AnalysisResult, error)
	UpdateAnalysisResult(id string, mutator func(*AnalysisResult) error) (AnalysisResult, error)
	DeleteAnalysisResult(id string) error
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	ListPatients() []Patient
	ListSessions() []Session
	ListResultFiles() []ResultFile
	ListAnalysisResults() []AnalysisResult
	FindPatient(id string) (Patient, bool)
	FindSession(id string) (Session, bool)
	SessionsForPatient(patientID string) []Session
	FilesForSession(sessionID string) []ResultFile
	AnalysesForSession(sessionID string) []AnalysisResult
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetPatient(id string) (Patient, bool)
	ListPatients() []Patient
	ListSessions() []Session
	ListResultFiles() []ResultFile
	ListAnalysisResults() []AnalysisResult
}
