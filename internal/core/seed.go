package core

import (
	"context"
	"eegrecords/pkg/domain"
	"fmt"
	"time"
)

// PlaceholderContent is the body stored for every placeholder result file.
const PlaceholderContent = "Placeholder EEG data\n"

// PlaceholderDescription marks placeholder result files.
const PlaceholderDescription = "placeholder"

// SessionSpec describes one session of a seeded patient. The start instant is
// the seeding reference time minus DaysAgo days.
type SessionSpec struct {
	DaysAgo int
	// DurationMinutes is nil when the input omits it and Seed then uses
	// domain.DefaultSessionDurationMinutes. An explicit zero is rejected.
	DurationMinutes *int
	Technician      string
	Conclusion      string
}

// Minutes returns a duration for SessionSpec.DurationMinutes.
func Minutes(n int) *int { return &n }

func (ss SessionSpec) duration() int {
	if ss.DurationMinutes == nil {
		return domain.DefaultSessionDurationMinutes
	}
	return *ss.DurationMinutes
}

// PatientSpec describes one patient of a seed run.
type PatientSpec struct {
	FullName    string
	BirthDate   time.Time
	ContactInfo string
	Sessions    []SessionSpec
}

// SeedReport counts what a committed seed run did.
type SeedReport struct {
	PatientsCreated int `json:"patients_created"`
	PatientsUpdated int `json:"patients_updated"`
	SessionsCreated int `json:"sessions_created"`
	SessionsUpdated int `json:"sessions_updated"`
	FilesCreated    int `json:"files_created"`
}

// PatientsAffected is the number of patient upserts, created or updated.
func (r SeedReport) PatientsAffected() int { return r.PatientsCreated + r.PatientsUpdated }

// SessionsAffected is the number of session upserts, created or updated.
func (r SeedReport) SessionsAffected() int { return r.SessionsCreated + r.SessionsUpdated }

// SeedError reports the input position at which a seed run failed.
// SessionIndex is -1 when the patient itself failed.
type SeedError struct {
	PatientIndex int
	SessionIndex int
	Err          error
}

func (e *SeedError) Error() string {
	if e.SessionIndex < 0 {
		return fmt.Sprintf("seed patient %d: %v", e.PatientIndex, e.Err)
	}
	return fmt.Sprintf("seed patient %d session %d: %v", e.PatientIndex, e.SessionIndex, e.Err)
}

func (e *SeedError) Unwrap() error { return e.Err }

// Seed upserts every patient and session of specs and makes sure each touched
// session owns exactly one placeholder result file. The whole list commits in
// one transaction: on any error nothing is persisted, stored placeholder bytes
// are removed and a *SeedError names the failing input.
//
// Session start instants are relative to the service clock truncated to the
// UTC day, so repeated runs on the same day converge on the same records.
func (s *Service) Seed(ctx context.Context, specs []PatientSpec) (SeedReport, error) {
	var report SeedReport
	writes := s.files.begin()
	reference := domain.DateOf(s.clock.Now())
	_, err := s.write(ctx, "seed", func(tx Transaction) error {
		report = SeedReport{}
		for i, spec := range specs {
			if err := ctx.Err(); err != nil {
				return &SeedError{PatientIndex: i, SessionIndex: -1, Err: err}
			}
			if err := s.seedPatient(ctx, tx, writes, reference, i, spec, &report); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.compensate(ctx, writes)
		return SeedReport{}, err
	}
	if rec, ok := s.metrics.(interface{ ObserveSeed(SeedReport) }); ok {
		rec.ObserveSeed(report)
	}
	s.logger.Info("seed completed",
		"patients_created", report.PatientsCreated,
		"patients_updated", report.PatientsUpdated,
		"sessions_created", report.SessionsCreated,
		"sessions_updated", report.SessionsUpdated,
		"files_created", report.FilesCreated,
	)
	return report, nil
}

func (s *Service) seedPatient(ctx context.Context, tx Transaction, writes *writeLog, reference time.Time, index int, spec PatientSpec, report *SeedReport) error {
	patient, created, err := UpsertPatient(tx, Patient{
		FullName:    spec.FullName,
		BirthDate:   spec.BirthDate,
		ContactInfo: spec.ContactInfo,
	})
	if err != nil {
		return &SeedError{PatientIndex: index, SessionIndex: -1, Err: err}
	}
	if created {
		report.PatientsCreated++
	} else {
		report.PatientsUpdated++
	}
	s.logger.Debug("seeded patient", "index", index, "id", patient.ID, "name", patient.FullName, "created", created)

	for j, ss := range spec.Sessions {
		if ss.DaysAgo < 0 {
			return &SeedError{PatientIndex: index, SessionIndex: j, Err: &domain.ConstraintViolationError{
				Entity: domain.EntitySession,
				Field:  "days_ago",
				Reason: fmt.Sprintf("must not be negative, got %d", ss.DaysAgo),
			}}
		}
		session, created, err := UpsertSession(tx, Session{
			PatientID:       patient.ID,
			StartedAt:       reference.AddDate(0, 0, -ss.DaysAgo),
			DurationMinutes: ss.duration(),
			Technician:      ss.Technician,
			Conclusion:      ss.Conclusion,
		})
		if err != nil {
			return &SeedError{PatientIndex: index, SessionIndex: j, Err: err}
		}
		if created {
			report.SessionsCreated++
		} else {
			report.SessionsUpdated++
		}
		added, err := ensurePlaceholder(ctx, tx, writes, session)
		if err != nil {
			return &SeedError{PatientIndex: index, SessionIndex: j, Err: err}
		}
		if added {
			report.FilesCreated++
		}
	}
	return nil
}

// ensurePlaceholder attaches a placeholder result file to session unless one
// already exists. It reports whether a file was added.
func ensurePlaceholder(ctx context.Context, tx Transaction, writes *writeLog, session Session) (bool, error) {
	if tx.HasPlaceholderFile(session.ID) {
		return false, nil
	}
	name := fmt.Sprintf("placeholder_session_%s.txt", session.ID)
	handle, err := writes.store(ctx, FileKindResult, []byte(PlaceholderContent), name)
	if err != nil {
		return false, err
	}
	if _, err := tx.CreateResultFile(ResultFile{
		SessionID:     session.ID,
		File:          handle,
		Description:   PlaceholderDescription,
		IsPlaceholder: true,
	}); err != nil {
		return false, err
	}
	return true, nil
}
