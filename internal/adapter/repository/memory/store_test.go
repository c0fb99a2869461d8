package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/clinicalledger/internal/domain"
)

func day(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newEntry(id, patient, date string, version int64) *domain.TreatmentEntry {
	return &domain.TreatmentEntry{
		ID:             id,
		PatientID:      patient,
		Date:           day(date),
		Content:        "content " + id,
		TherapyMethods: []string{},
		Version:        version,
		CreatedAt:      time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func put(t *testing.T, store *Store, entries ...*domain.TreatmentEntry) {
	t.Helper()
	ctx := context.Background()

	tx, err := NewTxManager(store).Begin(ctx)
	require.NoError(t, err)
	repo := NewEntryRepository(store)
	for _, e := range entries {
		require.NoError(t, repo.Put(ctx, tx, e))
	}
	require.NoError(t, tx.Commit(ctx))
}

func TestEntryRepository_PutGet(t *testing.T) {
	store := NewStore()
	repo := NewEntryRepository(store)
	ctx := context.Background()

	put(t, store, newEntry("e1", "p1", "2024-01-01", 1))

	got, err := repo.Get(ctx, "p1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "content e1", got.Content)

	_, err = repo.Get(ctx, "p2", "e1")
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)

	got.Content = "mutated"
	again, err := repo.Get(ctx, "p1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "content e1", again.Content, "callers must receive copies")
}

func TestEntryRepository_PutRejectsVersionRegression(t *testing.T) {
	store := NewStore()
	repo := NewEntryRepository(store)
	ctx := context.Background()

	put(t, store, newEntry("e1", "p1", "2024-01-01", 1))
	put(t, store, newEntry("e1", "p1", "2024-01-01", 2))

	tests := []struct {
		name  string
		entry *domain.TreatmentEntry
	}{
		{"same version", newEntry("e1", "p1", "2024-01-01", 2)},
		{"older version", newEntry("e1", "p1", "2024-01-01", 1)},
		{"new entry not at version 1", newEntry("e2", "p1", "2024-01-01", 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := NewTxManager(store).Begin(ctx)
			require.NoError(t, err)
			defer tx.Rollback(ctx)

			err = repo.Put(ctx, tx, tt.entry)
			assert.ErrorIs(t, err, domain.ErrVersionConflict)
			assert.Equal(t, domain.KindConflict, domain.KindOf(err))
		})
	}
}

func TestTx_CommitRechecksVersions(t *testing.T) {
	store := NewStore()
	repo := NewEntryRepository(store)
	ctx := context.Background()
	put(t, store, newEntry("e1", "p1", "2024-01-01", 1))

	tx1, _ := NewTxManager(store).Begin(ctx)
	tx2, _ := NewTxManager(store).Begin(ctx)
	require.NoError(t, repo.Put(ctx, tx1, newEntry("e1", "p1", "2024-01-01", 2)))
	require.NoError(t, repo.Put(ctx, tx2, newEntry("e1", "p1", "2024-01-01", 2)))

	require.NoError(t, tx1.Commit(ctx))
	assert.ErrorIs(t, tx2.Commit(ctx), domain.ErrVersionConflict)
}

func TestTx_RollbackDiscardsEverything(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tx, err := NewTxManager(store).Begin(ctx)
	require.NoError(t, err)

	entry := newEntry("e1", "p1", "2024-01-01", 1)
	require.NoError(t, NewEntryRepository(store).Put(ctx, tx, entry))
	_, err = NewLedgerRepository(store).RecordEntry(ctx, tx, "p1", entry.Date, entry.CreatedAt)
	require.NoError(t, err)
	require.NoError(t, NewAuditRepository(store).Append(ctx, tx, &domain.AuditEvent{ID: "ev1", EntryID: "e1"}))

	require.NoError(t, tx.Rollback(ctx))
	assert.Error(t, tx.Commit(ctx))

	_, err = NewEntryRepository(store).Get(ctx, "p1", "e1")
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	_, err = NewLedgerRepository(store).Get(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrLedgerNotFound)
	events, err := NewAuditRepository(store).History(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTx_FailedCheckAppliesNothing(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	put(t, store, newEntry("e1", "p1", "2024-01-01", 1))

	tx, _ := NewTxManager(store).Begin(ctx)
	audit := NewAuditRepository(store)
	require.NoError(t, audit.Append(ctx, tx, &domain.AuditEvent{ID: "ev1", EntryID: "e2"}))
	require.NoError(t, NewEntryRepository(store).Put(ctx, tx, newEntry("e2", "p1", "2024-01-02", 1)))

	// A concurrent writer creates e2 first.
	put(t, store, newEntry("e2", "p1", "2024-01-02", 1))

	assert.ErrorIs(t, tx.Commit(ctx), domain.ErrVersionConflict)
	events, err := audit.History(ctx, "e2")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEntryRepository_ListByPatientOrderAndRestart(t *testing.T) {
	store := NewStore()
	repo := NewEntryRepository(store)
	ctx := context.Background()

	late := newEntry("e3", "p1", "2024-01-10", 1)
	sameDayFirst := newEntry("e2", "p1", "2024-01-05", 1)
	sameDaySecond := newEntry("e1", "p1", "2024-01-05", 1)
	sameDaySecond.CreatedAt = sameDayFirst.CreatedAt.Add(time.Minute)
	put(t, store, late, sameDaySecond, sameDayFirst, newEntry("x", "p2", "2023-01-01", 1))

	seq := repo.ListByPatient(ctx, "p1")

	collect := func() []string {
		var ids []string
		for e, err := range seq {
			require.NoError(t, err)
			ids = append(ids, e.ID)
		}
		return ids
	}

	assert.Equal(t, []string{"e2", "e1", "e3"}, collect())

	put(t, store, newEntry("e0", "p1", "2023-12-31", 1))
	assert.Equal(t, []string{"e0", "e2", "e1", "e3"}, collect(), "each range reads a fresh snapshot")

	for range seq {
		break
	}
}

func TestEntryRepository_ListByPatientCancelled(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range NewEntryRepository(store).ListByPatient(ctx, "p1") {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, context.Canceled)
}

func TestLedgerRepository_RecordEntry(t *testing.T) {
	store := NewStore()
	repo := NewLedgerRepository(store)
	ctx := context.Background()
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	record := func(date string) {
		tx, _ := NewTxManager(store).Begin(ctx)
		_, err := repo.RecordEntry(ctx, tx, "p1", day(date), now)
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))
	}

	record("2024-01-10")
	record("2024-01-20")
	record("2024-01-03")

	l, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-03"), l.FirstVisitDate)
	assert.Equal(t, int64(3), l.EntryCount)
}

func TestAuditRepository_AppendHistoryLast(t *testing.T) {
	store := NewStore()
	repo := NewAuditRepository(store)
	ctx := context.Background()

	tx, _ := NewTxManager(store).Begin(ctx)
	last, err := repo.Last(ctx, tx, "e1")
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, repo.Append(ctx, tx, &domain.AuditEvent{ID: "ev1", EntryID: "e1", NewVersion: 1, Hash: "h1"}))
	require.NoError(t, repo.Append(ctx, tx, &domain.AuditEvent{ID: "ev2", EntryID: "e1", NewVersion: 2, Hash: "h2"}))
	require.NoError(t, tx.Commit(ctx))

	events, err := repo.History(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev1", events[0].ID)
	assert.Equal(t, "ev2", events[1].ID)

	tx, _ = NewTxManager(store).Begin(ctx)
	defer tx.Rollback(ctx)
	last, err = repo.Last(ctx, tx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "h2", last.Hash)

	require.NoError(t, repo.Append(ctx, tx, &domain.AuditEvent{ID: "ev1", EntryID: "e1"}))
	assert.ErrorIs(t, tx.Commit(ctx), domain.ErrConflict)
}

func TestAuditRepository_StoredEventsAreIsolated(t *testing.T) {
	store := NewStore()
	repo := NewAuditRepository(store)
	ctx := context.Background()

	pain := decimal.NewFromInt(7)
	create := &domain.AuditEvent{
		ID:         "ev1",
		EntryID:    "e1",
		Action:     domain.AuditActionCreate,
		NewVersion: 1,
		Diff: domain.Diff{
			Content:        &domain.ContentChange{After: "initial evaluation"},
			TherapyMethods: &domain.TherapyMethodsChange{Before: []string{}, After: []string{"manual"}},
			Measurements:   map[string]domain.MeasurementChange{"pain": {After: &pain}},
		},
	}
	create.Seal("")

	tx, _ := NewTxManager(store).Begin(ctx)
	require.NoError(t, repo.Append(ctx, tx, create))
	require.NoError(t, tx.Commit(ctx))

	// Changes to the appended value stay out of the log.
	create.Diff.Content.After = "rewritten"
	create.Diff.TherapyMethods.After[0] = "exercise"
	*create.Diff.Measurements["pain"].After = decimal.NewFromInt(1)

	events, err := repo.History(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, events, 1)

	// So do changes to returned events.
	ninetyNine := decimal.NewFromInt(99)
	events[0].Diff.Measurements["pain"] = domain.MeasurementChange{After: &ninetyNine}
	events[0].Diff.Content.After = "rewritten"
	events[0].Hash = "forged"

	tx, _ = NewTxManager(store).Begin(ctx)
	last, err := repo.Last(ctx, tx, "e1")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
	last.Diff.TherapyMethods.After[0] = "exercise"
	delete(last.Diff.Measurements, "pain")

	events, err = repo.History(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, "initial evaluation", got.Diff.Content.After)
	assert.Equal(t, []string{"manual"}, got.Diff.TherapyMethods.After)
	require.Contains(t, got.Diff.Measurements, "pain")
	assert.True(t, got.Diff.Measurements["pain"].After.Equal(decimal.NewFromInt(7)))
	assert.NoError(t, domain.VerifyChain(events))
}

func TestStore_ConcurrentCommits(t *testing.T) {
	store := NewStore()
	repo := NewEntryRepository(store)
	ctx := context.Background()
	put(t, store, newEntry("e1", "p1", "2024-01-01", 1))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, _ := NewTxManager(store).Begin(ctx)
			if err := repo.Put(ctx, tx, newEntry("e1", "p1", "2024-01-01", 2)); err != nil {
				return
			}
			if err := tx.Commit(ctx); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
