package core

import (
	"context"
	"eegrecords/internal/blob"
	blobmem "eegrecords/internal/infra/blob/memory"
	"eegrecords/internal/infra/persistence/memory"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

var testBirthDate = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *memory.Store
	blobs *blobmem.Store
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	blobs := blobmem.New()
	return newFixtureWithBlobs(t, blobs, blobs, opts...)
}

func newFixtureWithBlobs(t *testing.T, backend blob.Store, inner *blobmem.Store, opts ...Option) fixture {
	t.Helper()
	clock := ClockFunc(func() time.Time { return testNow })
	store := memory.NewStore(NewDefaultRulesEngine(), memory.WithClock(clock.Now))
	opts = append([]Option{WithClock(clock)}, opts...)
	svc := NewService(store, NewFileStore(backend), opts...)
	return fixture{svc: svc, store: store, blobs: inner}
}

func (f fixture) counts() (patients, sessions, files, analyses int) {
	return len(f.store.ListPatients()), len(f.store.ListSessions()),
		len(f.store.ListResultFiles()), len(f.store.ListAnalysisResults())
}

func mustPatient(t *testing.T, svc *Service, name string) Patient {
	t.Helper()
	p, _, err := svc.CreatePatient(context.Background(), Patient{FullName: name, BirthDate: testBirthDate})
	require.NoError(t, err)
	return p
}

func mustSession(t *testing.T, svc *Service, patientID string, start time.Time) Session {
	t.Helper()
	s, _, err := svc.CreateSession(context.Background(), Session{
		PatientID:       patientID,
		StartedAt:       start,
		DurationMinutes: 40,
		Technician:      "T",
	})
	require.NoError(t, err)
	return s
}

func scenarioSpecs() []PatientSpec {
	return []PatientSpec{{
		FullName:  "A",
		BirthDate: testBirthDate,
		Sessions: []SessionSpec{{
			DaysAgo:         1,
			DurationMinutes: Minutes(20),
			Technician:      "T",
			Conclusion:      "ok",
		}},
	}}
}

var errInjected = errors.New("injected put failure")

// failingBlobs fails the n-th Put (1-based) and delegates everything else.
type failingBlobs struct {
	*blobmem.Store
	mu     sync.Mutex
	puts   int
	failOn int
}

func (f *failingBlobs) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	f.mu.Lock()
	f.puts++
	fail := f.puts == f.failOn
	f.mu.Unlock()
	if fail {
		return blob.Info{}, errInjected
	}
	return f.Store.Put(ctx, key, r, opts)
}
