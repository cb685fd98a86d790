// Package domain defines the persistent EEG examination records, value types,
// and rule evaluation primitives used by eegrecords.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPatient identifies a patient record, the root of the ownership tree.
	EntityPatient EntityType = "patient"
	// EntitySession identifies an EEG session owned by a patient.
	EntitySession EntityType = "session"
	// EntityResultFile identifies a raw result file attached to a session.
	EntityResultFile EntityType = "result_file"
	// EntityAnalysisResult identifies an emotion classification result attached to a session.
	EntityAnalysisResult EntityType = "analysis_result"
)

// DefaultSessionDurationMinutes is used by input boundaries when a session
// omits its duration. The store itself rejects a zero duration.
const DefaultSessionDurationMinutes = 30

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains the identifier shared by all domain records.
type Base struct {
	ID string `json:"id"`
}

// Patient is a person undergoing EEG examinations.
type Patient struct {
	Base
	FullName    string    `json:"full_name"`
	BirthDate   time.Time `json:"birth_date"`
	ContactInfo string    `json:"contact_info"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Session is a single EEG examination performed on a patient.
type Session struct {
	Base
	PatientID       string    `json:"patient_id"`
	StartedAt       time.Time `json:"start_datetime"`
	DurationMinutes int       `json:"duration_minutes"`
	Technician      string    `json:"technician"`
	Conclusion      string    `json:"conclusion"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FileHandle references stored bytes together with the name they were uploaded under.
type FileHandle struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// IsZero reports whether the handle references nothing.
func (h FileHandle) IsZero() bool { return h.Key == "" && h.Name == "" }

// ResultFile is a raw examination file attached to a session.
type ResultFile struct {
	Base
	SessionID     string     `json:"session_id"`
	UploadedAt    time.Time  `json:"uploaded_at"`
	File          FileHandle `json:"file"`
	Description   string     `json:"description"`
	IsPlaceholder bool       `json:"is_placeholder"`
}

// AnalysisResult is an externally computed emotion classification for a session.
type AnalysisResult struct {
	Base
	SessionID     string         `json:"session_id"`
	CreatedAt     time.Time      `json:"created_at"`
	ModelName     string         `json:"model_name"`
	EmotionLabel  EmotionLabel   `json:"emotion_label"`
	Confidence    float64        `json:"confidence"`
	Metrics       map[string]any `json:"metrics"`
	Visualization *FileHandle    `json:"visualization,omitempty"`
	Notes         string         `json:"notes"`
}

// PatientKey is the natural key used to decide whether a patient already exists.
type PatientKey struct {
	FullName string
}

// SessionKey is the natural key of a session: its owner and start instant.
type SessionKey struct {
	PatientID string
	StartedAt time.Time
}

// Matches reports whether the session carries this natural key.
func (k SessionKey) Matches(s Session) bool {
	return s.PatientID == k.PatientID && s.StartedAt.Equal(k.StartedAt)
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Rule + ": " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Is lets rule violations satisfy errors.Is(err, ErrConstraintViolation).
func (e RuleViolationError) Is(target error) bool { return target == ErrConstraintViolation }
