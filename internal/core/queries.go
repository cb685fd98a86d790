package core

import (
	"context"
	"eegrecords/pkg/domain"

	"github.com/patrickmn/go-cache"
)

// LatestSessionsLimit bounds the recent sessions listed by Summary.
const LatestSessionsLimit = 5

// PatientListing is a patient with the number of sessions it owns.
type PatientListing struct {
	Patient
	SessionCount int `json:"sessions_count"`
}

// SessionRecord is a session with its attached files and analyses.
type SessionRecord struct {
	Session
	Files    []ResultFile     `json:"files"`
	Analyses []AnalysisResult `json:"analyses"`
}

// PatientRecord is a patient with its sessions, newest first.
type PatientRecord struct {
	Patient
	Sessions []SessionRecord `json:"sessions"`
}

// LatestSession pairs a session with its patient's name.
type LatestSession struct {
	Session
	PatientName string `json:"patient_name"`
}

// Summary totals every record kind and lists the most recent sessions.
type Summary struct {
	Patients        int             `json:"patients"`
	Sessions        int             `json:"sessions"`
	ResultFiles     int             `json:"result_files"`
	AnalysisResults int             `json:"analysis_results"`
	Latest          []LatestSession `json:"latest_sessions"`
}

const (
	cacheKeyPatients = "patients"
	cacheKeySummary  = "summary"
)

type cacheEntry struct {
	stamp uint64
	value any
}

// revisioned stores report a counter that moves with every visible state
// change, including commits made through other handles on the same backend.
type revisioned interface {
	Revision(ctx context.Context) (uint64, error)
}

// stamp identifies the state a cached read was computed from. Stores without
// a revision fall back to the service's own write generation.
func (s *Service) stamp(ctx context.Context) (uint64, error) {
	if r, ok := s.store.(revisioned); ok {
		return r.Revision(ctx)
	}
	return s.generation.Load(), nil
}

func (s *Service) cached(ctx context.Context, key string) (any, uint64, bool, error) {
	if s.cache == nil {
		return nil, 0, false, nil
	}
	stamp, err := s.stamp(ctx)
	if err != nil {
		return nil, 0, false, err
	}
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, stamp, false, nil
	}
	entry := v.(cacheEntry)
	if entry.stamp != stamp {
		return nil, stamp, false, nil
	}
	return entry.value, stamp, true, nil
}

func (s *Service) remember(key string, stamp uint64, value any) {
	if s.cache == nil {
		return
	}
	s.cache.Set(key, cacheEntry{stamp: stamp, value: value}, cache.DefaultExpiration)
}

func (s *Service) invalidate() {
	s.generation.Add(1)
	if s.cache != nil {
		s.cache.Flush()
	}
}

// ListPatients returns every patient ordered by full name with its session count.
func (s *Service) ListPatients(ctx context.Context) ([]PatientListing, error) {
	v, stamp, ok, err := s.cached(ctx, cacheKeyPatients)
	if err != nil {
		return nil, err
	}
	if ok {
		return append([]PatientListing(nil), v.([]PatientListing)...), nil
	}
	var out []PatientListing
	err = s.run(ctx, "list_patients", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			counts := make(map[string]int)
			for _, session := range view.ListSessions() {
				counts[session.PatientID]++
			}
			patients := view.ListPatients()
			out = make([]PatientListing, 0, len(patients))
			for _, p := range patients {
				out = append(out, PatientListing{Patient: p, SessionCount: counts[p.ID]})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.remember(cacheKeyPatients, stamp, out)
	return append([]PatientListing(nil), out...), nil
}

// GetPatientWithSessions returns the patient with its sessions and their
// nested files and analyses, or a NotFoundError.
func (s *Service) GetPatientWithSessions(ctx context.Context, id string) (PatientRecord, error) {
	var record PatientRecord
	err := s.run(ctx, "get_patient", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			p, ok := view.FindPatient(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityPatient, ID: id}
			}
			record.Patient = p
			for _, session := range view.SessionsForPatient(id) {
				record.Sessions = append(record.Sessions, SessionRecord{
					Session:  session,
					Files:    view.FilesForSession(session.ID),
					Analyses: view.AnalysesForSession(session.ID),
				})
			}
			return nil
		})
	})
	return record, err
}

// Summary returns record totals and the latest sessions.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	v, stamp, ok, err := s.cached(ctx, cacheKeySummary)
	if err != nil {
		return Summary{}, err
	}
	if ok {
		sum := v.(Summary)
		sum.Latest = append([]LatestSession(nil), sum.Latest...)
		return sum, nil
	}
	var sum Summary
	err = s.run(ctx, "summary", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			sessions := view.ListSessions()
			sum = Summary{
				Patients:        len(view.ListPatients()),
				Sessions:        len(sessions),
				ResultFiles:     len(view.ListResultFiles()),
				AnalysisResults: len(view.ListAnalysisResults()),
			}
			for i, session := range sessions {
				if i == LatestSessionsLimit {
					break
				}
				latest := LatestSession{Session: session}
				if p, ok := view.FindPatient(session.PatientID); ok {
					latest.PatientName = p.FullName
				}
				sum.Latest = append(sum.Latest, latest)
			}
			return nil
		})
	})
	if err != nil {
		return Summary{}, err
	}
	s.remember(cacheKeySummary, stamp, sum)
	out := sum
	out.Latest = append([]LatestSession(nil), sum.Latest...)
	return out, nil
}

// GetResultFile returns a result file by ID or a NotFoundError.
func (s *Service) GetResultFile(ctx context.Context, id string) (ResultFile, error) {
	var file ResultFile
	err := s.run(ctx, "get_result_file", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			for _, f := range view.ListResultFiles() {
				if f.ID == id {
					file = f
					return nil
				}
			}
			return domain.NotFoundError{Entity: domain.EntityResultFile, ID: id}
		})
	})
	return file, err
}
