package domain

import (
	"fmt"
	"math"
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

// Field length limits applied to free-text attributes.
const (
	MaxFullNameLength    = 255
	MaxTechnicianLength  = 150
	MaxDescriptionLength = 255
	MaxModelNameLength   = 150
)

var (
	resultFileExtensions    = []string{"edf", "csv", "txt"}
	visualizationExtensions = []string{"png", "jpg", "jpeg", "svg", "pdf"}
)

// ResultFileExtensions lists the extensions accepted for raw result files.
func ResultFileExtensions() []string { return append([]string(nil), resultFileExtensions...) }

// VisualizationExtensions lists the extensions accepted for analysis visualizations.
func VisualizationExtensions() []string { return append([]string(nil), visualizationExtensions...) }

// FileExtension returns the lower-cased extension of name without the dot.
func FileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

func checkExtension(entity EntityType, field, name string, allowed []string) error {
	ext := FileExtension(name)
	for _, candidate := range allowed {
		if ext == candidate {
			return nil
		}
	}
	return violation(entity, field, fmt.Sprintf("extension %q not in %s", ext, strings.Join(allowed, ", ")))
}

// ValidateResultFileName checks a result file name against the allow-list before storage.
func ValidateResultFileName(name string) error {
	return checkExtension(EntityResultFile, "file", name, resultFileExtensions)
}

// ValidateVisualizationName checks a visualization name against the allow-list before storage.
func ValidateVisualizationName(name string) error {
	return checkExtension(EntityAnalysisResult, "visualization", name, visualizationExtensions)
}

func checkLength(entity EntityType, field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return violation(entity, field, fmt.Sprintf("longer than %d characters", limit))
	}
	return nil
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, violation(EntityPatient, "birth_date", err.Error())
	}
	return t, nil
}

// NormalizePatient trims free text and reduces the birth date to a calendar date.
func NormalizePatient(p *Patient) {
	p.FullName = strings.TrimSpace(p.FullName)
	if !p.BirthDate.IsZero() {
		p.BirthDate = DateOf(p.BirthDate)
	}
}

// ValidatePatient enforces the patient field invariants.
func ValidatePatient(p Patient) error {
	if p.FullName == "" {
		return violation(EntityPatient, "full_name", "required")
	}
	if err := checkLength(EntityPatient, "full_name", p.FullName, MaxFullNameLength); err != nil {
		return err
	}
	if p.BirthDate.IsZero() {
		return violation(EntityPatient, "birth_date", "required")
	}
	return nil
}

// NormalizeSession trims the technician and stores the start instant in UTC.
// The duration is left alone: a zero duration is invalid, callers that can
// tell an absent duration apart apply DefaultSessionDurationMinutes themselves.
func NormalizeSession(s *Session) {
	s.Technician = strings.TrimSpace(s.Technician)
	if !s.StartedAt.IsZero() {
		s.StartedAt = s.StartedAt.UTC()
	}
}

// ValidateSession enforces the session field invariants. Owner resolution is the store's job.
func ValidateSession(s Session) error {
	if s.PatientID == "" {
		return violation(EntitySession, "patient_id", "required")
	}
	if s.StartedAt.IsZero() {
		return violation(EntitySession, "start_datetime", "required")
	}
	if s.DurationMinutes <= 0 {
		return violation(EntitySession, "duration_minutes", fmt.Sprintf("must be positive, got %d", s.DurationMinutes))
	}
	if s.Technician == "" {
		return violation(EntitySession, "technician", "required")
	}
	return checkLength(EntitySession, "technician", s.Technician, MaxTechnicianLength)
}

// ValidateResultFile enforces the result file field invariants.
func ValidateResultFile(f ResultFile) error {
	if f.SessionID == "" {
		return violation(EntityResultFile, "session_id", "required")
	}
	if f.File.Key == "" {
		return violation(EntityResultFile, "file", "required")
	}
	if err := ValidateResultFileName(f.File.Name); err != nil {
		return err
	}
	return checkLength(EntityResultFile, "description", f.Description, MaxDescriptionLength)
}

// ValidateAnalysisResult enforces the analysis result field invariants.
func ValidateAnalysisResult(a AnalysisResult) error {
	if a.SessionID == "" {
		return violation(EntityAnalysisResult, "session_id", "required")
	}
	if strings.TrimSpace(a.ModelName) == "" {
		return violation(EntityAnalysisResult, "model_name", "required")
	}
	if err := checkLength(EntityAnalysisResult, "model_name", a.ModelName, MaxModelNameLength); err != nil {
		return err
	}
	if !a.EmotionLabel.Valid() {
		return violation(EntityAnalysisResult, "emotion_label", fmt.Sprintf("unknown label %q", a.EmotionLabel))
	}
	if math.IsNaN(a.Confidence) || a.Confidence < 0 || a.Confidence > 1 {
		return violation(EntityAnalysisResult, "confidence", fmt.Sprintf("%v outside [0, 1]", a.Confidence))
	}
	if a.Visualization != nil {
		if a.Visualization.Key == "" {
			return violation(EntityAnalysisResult, "visualization", "handle without key")
		}
		if err := ValidateVisualizationName(a.Visualization.Name); err != nil {
			return err
		}
	}
	return nil
}
