package core

import (
	"context"
	"eegrecords/internal/infra/persistence/memory"
	"eegrecords/pkg/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPatientsOrderAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	zoe := mustPatient(t, f.svc, "Zoe")
	adam := mustPatient(t, f.svc, "Adam")
	mustSession(t, f.svc, zoe.ID, testNow)
	mustSession(t, f.svc, zoe.ID, testNow.Add(-time.Hour))

	list, err := f.svc.ListPatients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, adam.ID, list[0].ID)
	assert.Equal(t, 0, list[0].SessionCount)
	assert.Equal(t, zoe.ID, list[1].ID)
	assert.Equal(t, 2, list[1].SessionCount)
}

func TestGetPatientWithSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustPatient(t, f.svc, "A")
	older := mustSession(t, f.svc, p.ID, testNow.AddDate(0, 0, -3))
	newer := mustSession(t, f.svc, p.ID, testNow)
	_, _, err := f.svc.AttachFile(ctx, newer.ID, []byte("x"), "r.edf", "")
	require.NoError(t, err)
	_, _, err = f.svc.AttachAnalysis(ctx, AnalysisInput{SessionID: newer.ID, ModelName: "m", EmotionLabel: domain.EmotionSadness})
	require.NoError(t, err)

	rec, err := f.svc.GetPatientWithSessions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rec.Sessions, 2)
	assert.Equal(t, newer.ID, rec.Sessions[0].ID)
	assert.Equal(t, older.ID, rec.Sessions[1].ID)
	assert.Len(t, rec.Sessions[0].Files, 1)
	assert.Len(t, rec.Sessions[0].Analyses, 1)
	assert.Empty(t, rec.Sessions[1].Files)

	_, err = f.svc.GetPatientWithSessions(ctx, "ghost")
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.EntityPatient, nf.Entity)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := mustPatient(t, f.svc, "A")
	for i := 0; i < 7; i++ {
		mustSession(t, f.svc, p.ID, testNow.AddDate(0, 0, -i))
	}
	sum, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Patients)
	assert.Equal(t, 7, sum.Sessions)
	require.Len(t, sum.Latest, LatestSessionsLimit)
	assert.Equal(t, testNow, sum.Latest[0].StartedAt)
	assert.Equal(t, "A", sum.Latest[0].PatientName)
}

func TestCachedQueriesInvalidateOnWrite(t *testing.T) {
	f := newFixture(t, WithCacheTTL(time.Minute))
	ctx := context.Background()
	mustPatient(t, f.svc, "A")

	list, err := f.svc.ListPatients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	sum, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Patients)

	list[0].FullName = "mutated"
	again, err := f.svc.ListPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", again[0].FullName, "callers get copies of cached listings")

	mustPatient(t, f.svc, "B")
	list, err = f.svc.ListPatients(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	sum, err = f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Patients)
}

// viewCounter counts store reads. Embedding the concrete store keeps its Revision.
type viewCounter struct {
	*memory.Store
	views int
}

func (c *viewCounter) View(ctx context.Context, fn func(TransactionView) error) error {
	c.views++
	return c.Store.View(ctx, fn)
}

// plainViewCounter hides Revision so the service falls back to its own generation.
type plainViewCounter struct {
	PersistentStore
	views int
}

func (c *plainViewCounter) View(ctx context.Context, fn func(TransactionView) error) error {
	c.views++
	return c.PersistentStore.View(ctx, fn)
}

func TestCacheServesRepeatedReads(t *testing.T) {
	f := newFixture(t)
	counter := &viewCounter{Store: f.store}
	svc := NewService(counter, f.svc.files, WithCacheTTL(time.Minute))
	ctx := context.Background()
	mustPatient(t, svc, "A")

	for i := 0; i < 3; i++ {
		list, err := svc.ListPatients(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	}
	assert.Equal(t, 1, counter.views)
}

func TestCacheSeesCommitsFromOtherServices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cached := NewService(f.store, f.svc.files, WithCacheTTL(time.Hour))
	other := NewService(f.store, f.svc.files)
	mustPatient(t, cached, "A")
	list, err := cached.ListPatients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	sum, err := cached.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Patients)

	mustPatient(t, other, "B")
	_, err = f.store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreatePatient(Patient{FullName: "C", BirthDate: testBirthDate})
		return err
	})
	require.NoError(t, err)

	list, err = cached.ListPatients(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	sum, err = cached.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Patients)
}

func TestCacheWithoutStoreRevisionUsesServiceWrites(t *testing.T) {
	f := newFixture(t)
	counter := &plainViewCounter{PersistentStore: f.store}
	svc := NewService(counter, f.svc.files, WithCacheTTL(time.Minute))
	ctx := context.Background()
	mustPatient(t, svc, "A")

	_, err := svc.ListPatients(ctx)
	require.NoError(t, err)
	_, err = svc.ListPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counter.views)

	mustPatient(t, svc, "B")
	list, err := svc.ListPatients(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, counter.views)
}

func TestGetResultFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Seed(ctx, scenarioSpecs())
	require.NoError(t, err)
	want := f.store.ListResultFiles()[0]

	got, err := f.svc.GetResultFile(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = f.svc.GetResultFile(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
