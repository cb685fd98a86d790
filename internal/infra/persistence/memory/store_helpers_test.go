package memory

import (
	"context"
	"eegrecords/pkg/domain"
	"fmt"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(opts ...Option) *Store {
	seq := 0
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		}),
	}
	return NewStore(domain.NewRulesEngine(), append(base, opts...)...)
}

func importState(store *Store, snapshot Snapshot) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

func mustRun(t *testing.T, store *Store, fn func(tx Transaction) error) {
	t.Helper()
	if _, err := store.RunInTransaction(context.Background(), fn); err != nil {
		t.Fatalf("run transaction: %v", err)
	}
}

func testPatient(name string) Patient {
	return Patient{FullName: name, BirthDate: time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC), ContactInfo: "+1 555 0100"}
}

func testSession(patientID string, start time.Time) Session {
	return Session{PatientID: patientID, StartedAt: start, DurationMinutes: 45, Technician: "A. Tech"}
}

func testFile(sessionID, key string) ResultFile {
	return ResultFile{SessionID: sessionID, File: domain.FileHandle{Key: key, Name: "recording.edf"}, Description: "raw"}
}

func testAnalysis(sessionID string) AnalysisResult {
	return AnalysisResult{
		SessionID:    sessionID,
		ModelName:    "baseline",
		EmotionLabel: domain.EmotionCalm,
		Confidence:   0.8,
		Metrics:      map[string]any{"alpha": 0.4, "bands": []any{1.0, 2.0}},
	}
}

// seedTree creates one patient with one session holding a file and an analysis.
func seedTree(t *testing.T, store *Store) (Patient, Session) {
	t.Helper()
	var patient Patient
	var session Session
	mustRun(t, store, func(tx Transaction) error {
		var err error
		if patient, err = tx.CreatePatient(testPatient("Ada Lovelace")); err != nil {
			return err
		}
		if session, err = tx.CreateSession(testSession(patient.ID, fixedNow.Add(-time.Hour))); err != nil {
			return err
		}
		if _, err = tx.CreateResultFile(testFile(session.ID, "eeg_files/a.edf")); err != nil {
			return err
		}
		_, err = tx.CreateAnalysisResult(testAnalysis(session.ID))
		return err
	})
	return patient, session
}
