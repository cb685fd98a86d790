package core

import (
	"bytes"
	"context"
	"eegrecords/internal/logger"
	"eegrecords/pkg/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePatientConflict(t *testing.T) {
	f := newFixture(t)
	mustPatient(t, f.svc, "Jane Roe")
	_, _, err := f.svc.CreatePatient(context.Background(), Patient{FullName: "Jane Roe", BirthDate: testBirthDate})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCreateSessionMissingPatient(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.CreateSession(context.Background(), Session{PatientID: "ghost", StartedAt: testNow, DurationMinutes: 30, Technician: "T"})
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdatePatientAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustPatient(t, f.svc, "A")
	s := mustSession(t, f.svc, p.ID, testNow)

	updated, _, err := f.svc.UpdatePatient(ctx, p.ID, func(p *Patient) error {
		p.ContactInfo = "a@example.org"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, updated.ID)
	assert.Equal(t, "a@example.org", updated.ContactInfo)

	_, _, err = f.svc.UpdateSession(ctx, s.ID, func(s *Session) error {
		s.DurationMinutes = 0
		return nil
	})
	var cv *domain.ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "duration_minutes", cv.Field)
	got, err := f.svc.GetPatientWithSessions(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, s.DurationMinutes, got.Sessions[0].DurationMinutes)

	_, _, err = f.svc.UpdatePatient(ctx, "missing", func(*Patient) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAttachFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustPatient(t, f.svc, "A")
	s := mustSession(t, f.svc, p.ID, testNow)

	file, _, err := f.svc.AttachFile(ctx, s.ID, []byte("0,1,2\n"), "trace.CSV", "raw trace")
	require.NoError(t, err)
	assert.Equal(t, s.ID, file.SessionID)
	assert.Equal(t, "trace.CSV", file.File.Name)
	assert.False(t, file.IsPlaceholder)
	assert.Equal(t, testNow, file.UploadedAt)
	assert.Equal(t, 1, f.blobs.Len())
}

func TestAttachFileRejectsExtensionBeforeStorage(t *testing.T) {
	f := newFixture(t)
	p := mustPatient(t, f.svc, "A")
	s := mustSession(t, f.svc, p.ID, testNow)
	_, _, err := f.svc.AttachFile(context.Background(), s.ID, []byte("x"), "trace.exe", "")
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
	assert.Zero(t, f.blobs.Len())
}

func TestAttachFileMissingSessionStoresNothing(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.AttachFile(context.Background(), "ghost", []byte("x"), "trace.edf", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, f.blobs.Len())
}

func TestAttachFileCompensatesOnRejectedRecord(t *testing.T) {
	f := newFixture(t)
	p := mustPatient(t, f.svc, "A")
	s := mustSession(t, f.svc, p.ID, testNow)
	long := string(bytes.Repeat([]byte("d"), domain.MaxDescriptionLength+1))
	_, _, err := f.svc.AttachFile(context.Background(), s.ID, []byte("x"), "trace.edf", long)
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
	assert.Zero(t, f.blobs.Len())
}

func TestAttachAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustPatient(t, f.svc, "A")
	s := mustSession(t, f.svc, p.ID, testNow)

	a, _, err := f.svc.AttachAnalysis(ctx, AnalysisInput{
		SessionID:     s.ID,
		ModelName:     "cnn-v2",
		EmotionLabel:  domain.EmotionStress,
		Confidence:    0.91,
		Metrics:       map[string]any{"alpha_power": 0.3},
		Visualization: &Upload{Name: "heatmap.png", Data: []byte{0x89, 'P', 'N', 'G'}},
	})
	require.NoError(t, err)
	require.NotNil(t, a.Visualization)
	assert.Contains(t, a.Visualization.Key, "eeg_visuals/")
	assert.Equal(t, 0.3, a.Metrics["alpha_power"])

	plain, _, err := f.svc.AttachAnalysis(ctx, AnalysisInput{SessionID: s.ID, ModelName: "svm", EmotionLabel: domain.EmotionCalm})
	require.NoError(t, err)
	assert.Nil(t, plain.Visualization)
	assert.NotNil(t, plain.Metrics)
	assert.Equal(t, 1, f.blobs.Len())
}

func TestAttachAnalysisValidation(t *testing.T) {
	f := newFixture(t)
	p := mustPatient(t, f.svc, "A")
	s := mustSession(t, f.svc, p.ID, testNow)
	cases := map[string]AnalysisInput{
		"confidence":    {SessionID: s.ID, ModelName: "m", EmotionLabel: domain.EmotionJoy, Confidence: 1.5},
		"label":         {SessionID: s.ID, ModelName: "m", EmotionLabel: "bored"},
		"model":         {SessionID: s.ID, EmotionLabel: domain.EmotionJoy},
		"visualization": {SessionID: s.ID, ModelName: "m", EmotionLabel: domain.EmotionJoy, Visualization: &Upload{Name: "plot.gif"}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.svc.AttachAnalysis(context.Background(), in)
			assert.ErrorIs(t, err, domain.ErrConstraintViolation)
		})
	}
	assert.Zero(t, f.blobs.Len())
	assert.Empty(t, f.store.ListAnalysisResults())
}

func TestDeletePatientCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustPatient(t, f.svc, "A")
	other := mustPatient(t, f.svc, "B")
	mustSession(t, f.svc, other.ID, testNow)
	for i := 0; i < 2; i++ {
		s := mustSession(t, f.svc, p.ID, testNow.AddDate(0, 0, -i))
		_, _, err := f.svc.AttachFile(ctx, s.ID, []byte("x"), "rec.edf", "")
		require.NoError(t, err)
		_, _, err = f.svc.AttachAnalysis(ctx, AnalysisInput{
			SessionID: s.ID, ModelName: "m", EmotionLabel: domain.EmotionFear, Confidence: 0.5,
			Visualization: &Upload{Name: "v.svg", Data: []byte("<svg/>")},
		})
		require.NoError(t, err)
	}
	require.Equal(t, 4, f.blobs.Len())

	_, err := f.svc.DeletePatient(ctx, p.ID)
	require.NoError(t, err)

	patients, sessions, files, analyses := f.counts()
	assert.Equal(t, 1, patients)
	assert.Equal(t, 1, sessions)
	assert.Zero(t, files)
	assert.Zero(t, analyses)
	for _, s := range f.store.ListSessions() {
		assert.NotEqual(t, p.ID, s.PatientID)
	}
	assert.Zero(t, f.blobs.Len())

	_, err = f.svc.DeletePatient(ctx, p.ID)
	assert.NoError(t, err, "deleting an absent patient is a no-op")
	_, err = f.svc.GetPatientWithSessions(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteSessionFileAndAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustPatient(t, f.svc, "A")
	s1 := mustSession(t, f.svc, p.ID, testNow)
	s2 := mustSession(t, f.svc, p.ID, testNow.Add(-time.Hour))
	file, _, err := f.svc.AttachFile(ctx, s1.ID, []byte("x"), "a.txt", "")
	require.NoError(t, err)
	a, _, err := f.svc.AttachAnalysis(ctx, AnalysisInput{SessionID: s1.ID, ModelName: "m", EmotionLabel: domain.EmotionJoy,
		Visualization: &Upload{Name: "v.pdf", Data: []byte("%PDF")}})
	require.NoError(t, err)
	_, _, err = f.svc.AttachFile(ctx, s2.ID, []byte("y"), "b.txt", "")
	require.NoError(t, err)

	_, err = f.svc.DeleteResultFile(ctx, file.ID)
	require.NoError(t, err)
	_, err = f.svc.DeleteAnalysisResult(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.blobs.Len())

	_, err = f.svc.DeleteSession(ctx, s2.ID)
	require.NoError(t, err)
	assert.Zero(t, f.blobs.Len())
	_, sessions, files, analyses := f.counts()
	assert.Equal(t, 1, sessions)
	assert.Zero(t, files+analyses)
}

func TestServiceLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
	f := newFixture(t, WithLogger(log))
	_, _, err := f.svc.CreateSession(context.Background(), Session{PatientID: "ghost", StartedAt: testNow, DurationMinutes: 30, Technician: "T"})
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"op":"create_session"`)
	assert.Contains(t, buf.String(), "operation failed")
}

func TestNewInMemoryService(t *testing.T) {
	svc := NewInMemoryService(nil, WithClock(ClockFunc(func() time.Time { return testNow })))
	report, err := svc.Seed(context.Background(), scenarioSpecs())
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesCreated)
	patients := svc.Store().ListPatients()
	require.Len(t, patients, 1)
	assert.Equal(t, testNow, patients[0].UpdatedAt)
}
