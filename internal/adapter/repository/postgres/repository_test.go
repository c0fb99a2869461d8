package postgres

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

var (
	entryCols  = []string{"id", "patient_id", "entry_date", "content", "therapy_methods", "measurements", "version", "created_at", "last_amended_at"}
	ledgerCols = []string{"patient_id", "first_visit_date", "entry_count", "created_at", "updated_at"}
	auditCols  = []string{"id", "entry_id", "patient_id", "actor_id", "action", "occurred_at", "reason", "previous_version", "new_version", "diff", "previous_hash", "hash"}

	created = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
)

func beginTx(t *testing.T, mock pgxmock.PgxPoolIface) usecase.Transaction {
	t.Helper()
	mock.ExpectBegin()
	tx, err := newTxManagerWithPool(mock).Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return tx
}

func sampleEntry() *domain.TreatmentEntry {
	return &domain.TreatmentEntry{
		ID:             "01HENTRY",
		PatientID:      "patient-1",
		Date:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Content:        "初回評価",
		TherapyMethods: []string{"manual"},
		Measurements:   map[string]decimal.Decimal{"pain": decimal.NewFromInt(6)},
		Version:        1,
		CreatedAt:      created,
	}
}

func TestEntryRepositoryPutInsertsFirstVersion(t *testing.T) {
	mock := newMockPool(t)
	tx := beginTx(t, mock)
	mock.ExpectExec("INSERT INTO entries").
		WithArgs("01HENTRY", "patient-1", pgxmock.AnyArg(), "初回評価", []string{"manual"}, []byte(`{"pain":"6"}`),
			int64(1), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := NewEntryRepository(mock).Put(context.Background(), tx, sampleEntry()); err != nil {
		t.Fatalf("put: %v", err)
	}
	assertExpectations(t, mock)
}

func TestEntryRepositoryPutDuplicate(t *testing.T) {
	mock := newMockPool(t)
	tx := beginTx(t, mock)
	mock.ExpectExec("INSERT INTO entries").WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := NewEntryRepository(mock).Put(context.Background(), tx, sampleEntry())
	if domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestEntryRepositoryPutStaleVersion(t *testing.T) {
	mock := newMockPool(t)
	tx := beginTx(t, mock)
	mock.ExpectExec("UPDATE entries").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	entry := sampleEntry()
	entry.Version = 2
	err := NewEntryRepository(mock).Put(context.Background(), tx, entry)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestEntryRepositoryPutStorageFailure(t *testing.T) {
	mock := newMockPool(t)
	tx := beginTx(t, mock)
	mock.ExpectExec("UPDATE entries").WillReturnError(errors.New("connection reset"))

	entry := sampleEntry()
	entry.Version = 2
	err := NewEntryRepository(mock).Put(context.Background(), tx, entry)
	if domain.KindOf(err) != domain.KindStorage {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestEntryRepositoryGet(t *testing.T) {
	mock := newMockPool(t)
	amended := created.Add(time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM entries WHERE patient_id").
		WithArgs("patient-1", "01HENTRY").
		WillReturnRows(pgxmock.NewRows(entryCols).AddRow(
			"01HENTRY", "patient-1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "amended",
			[]string{"manual", "exercise"}, []byte(`{"pain":"4.5"}`), int64(2), created, amended,
		))

	entry, err := NewEntryRepository(mock).Get(context.Background(), "patient-1", "01HENTRY")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Version != 2 || entry.Content != "amended" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if !slices.Equal(entry.TherapyMethods, []string{"exercise", "manual"}) {
		t.Errorf("methods not normalized: %v", entry.TherapyMethods)
	}
	if !entry.Measurements["pain"].Equal(decimal.RequireFromString("4.5")) {
		t.Errorf("unexpected measurements %v", entry.Measurements)
	}
	if entry.LastAmendedAt == nil || !entry.LastAmendedAt.Equal(amended) {
		t.Errorf("unexpected last amended at %v", entry.LastAmendedAt)
	}
	assertExpectations(t, mock)
}

func TestEntryRepositoryGetNotFound(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery("SELECT (.+) FROM entries").WillReturnError(pgx.ErrNoRows)

	_, err := NewEntryRepository(mock).Get(context.Background(), "patient-1", "missing")
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestEntryRepositoryGetForUpdateLocksRow(t *testing.T) {
	mock := newMockPool(t)
	tx := beginTx(t, mock)
	mock.ExpectQuery("SELECT (.+) FROM entries (.+) FOR UPDATE").
		WithArgs("patient-1", "01HENTRY").
		WillReturnRows(pgxmock.NewRows(entryCols).AddRow(
			"01HENTRY", "patient-1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "initial",
			[]string{"manual"}, []byte(`{}`), int64(1), created, nil,
		))

	entry, err := NewEntryRepository(mock).GetForUpdate(context.Background(), tx, "patient-1", "01HENTRY")
	if err != nil {
		t.Fatalf("get for update: %v", err)
	}
	if entry.LastAmendedAt != nil || entry.Measurements != nil {
		t.Errorf("unexpected entry %+v", entry)
	}
	assertExpectations(t, mock)
}

func TestEntryRepositoryListByPatientIsRestartable(t *testing.T) {
	mock := newMockPool(t)
	rows := func() *pgxmock.Rows {
		return pgxmock.NewRows(entryCols).
			AddRow("a", "patient-1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "first", []string{}, []byte(`{}`), int64(1), created, nil).
			AddRow("b", "patient-1", time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), "second", []string{}, []byte(`{}`), int64(1), created, nil)
	}
	mock.ExpectQuery("SELECT (.+) FROM entries WHERE patient_id = (.+) ORDER BY").WithArgs("patient-1").WillReturnRows(rows())
	mock.ExpectQuery("SELECT (.+) FROM entries WHERE patient_id = (.+) ORDER BY").WithArgs("patient-1").WillReturnRows(rows())

	seq := NewEntryRepository(mock).ListByPatient(context.Background(), "patient-1")
	for range 2 {
		var ids []string
		for entry, err := range seq {
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			ids = append(ids, entry.ID)
		}
		if !slices.Equal(ids, []string{"a", "b"}) {
			t.Fatalf("unexpected ids %v", ids)
		}
	}
	assertExpectations(t, mock)
}

func TestEntryRepositoryListByPatientQueryError(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery("SELECT (.+) FROM entries").WillReturnError(errors.New("connection refused"))

	for _, err := range NewEntryRepository(mock).ListByPatient(context.Background(), "patient-1") {
		if domain.KindOf(err) != domain.KindStorage {
			t.Fatalf("expected storage error, got %v", err)
		}
	}
}

func TestLedgerRepositoryRecordEntry(t *testing.T) {
	mock := newMockPool(t)
	tx := beginTx(t, mock)
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO ledgers (.+) LEAST").
		WithArgs("patient-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(ledgerCols).AddRow("patient-1", first, int64(3), created, created))

	l, err := NewLedgerRepository(mock).RecordEntry(context.Background(), tx, "patient-1", first.AddDate(0, 0, 7), created)
	if err != nil {
		t.Fatalf("record entry: %v", err)
	}
	if !l.FirstVisitDate.Equal(first) || l.EntryCount != 3 {
		t.Errorf("unexpected ledger %+v", l)
	}
	assertExpectations(t, mock)
}

func TestLedgerRepositoryGetNotFound(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery("SELECT (.+) FROM ledgers").WithArgs("nobody").WillReturnError(pgx.ErrNoRows)

	_, err := NewLedgerRepository(mock).Get(context.Background(), "nobody")
	if !errors.Is(err, domain.ErrLedgerNotFound) {
		t.Fatalf("expected ErrLedgerNotFound, got %v", err)
	}
}

func sampleEvent() *domain.AuditEvent {
	prev := int64(1)
	ev := &domain.AuditEvent{
		ID:              "01HEVENT",
		EntryID:         "01HENTRY",
		PatientID:       "patient-1",
		ActorID:         "dr-sato",
		Action:          domain.AuditActionAmend,
		Timestamp:       created,
		Reason:          "記載漏れのため追記",
		PreviousVersion: &prev,
		NewVersion:      2,
		Diff:            domain.Diff{Content: &domain.ContentChange{Before: "a", After: "b"}},
	}
	ev.Seal("prev-hash")
	return ev
}

func TestAuditRepositoryAppend(t *testing.T) {
	mock := newMockPool(t)
	tx := beginTx(t, mock)
	ev := sampleEvent()
	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(ev.ID, ev.EntryID, ev.PatientID, ev.ActorID, "amend", pgxmock.AnyArg(), ev.Reason,
			pgxmock.AnyArg(), int64(2), pgxmock.AnyArg(), "prev-hash", ev.Hash).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := NewAuditRepository(mock).Append(context.Background(), tx, ev); err != nil {
		t.Fatalf("append: %v", err)
	}
	assertExpectations(t, mock)
}

func TestAuditRepositoryAppendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"duplicate", &pgconn.PgError{Code: pgErrUniqueViolation}, domain.KindConflict},
		{"storage", errors.New("disk full"), domain.KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tx := beginTx(t, mock)
			mock.ExpectExec("INSERT INTO audit_events").WillReturnError(tt.err)

			err := NewAuditRepository(mock).Append(context.Background(), tx, sampleEvent())
			if domain.KindOf(err) != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestAuditRepositoryHistoryKeepsHashChain(t *testing.T) {
	mock := newMockPool(t)
	ev := sampleEvent()
	mock.ExpectQuery("SELECT (.+) FROM audit_events WHERE entry_id = (.+) ORDER BY new_version").
		WithArgs("01HENTRY").
		WillReturnRows(pgxmock.NewRows(auditCols).AddRow(
			ev.ID, ev.EntryID, ev.PatientID, ev.ActorID, "amend", created, ev.Reason,
			int64(1), int64(2), []byte(`{"content":{"before":"a","after":"b"}}`), ev.PreviousHash, ev.Hash,
		))

	events, err := NewAuditRepository(mock).History(context.Background(), "01HENTRY")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.PreviousVersion == nil || *got.PreviousVersion != 1 || got.Diff.Content.After != "b" {
		t.Errorf("unexpected event %+v", got)
	}
	if got.ComputeHash() != ev.Hash {
		t.Errorf("persisted event no longer matches its hash")
	}
	assertExpectations(t, mock)
}

func TestAuditRepositoryLastWithoutEvents(t *testing.T) {
	mock := newMockPool(t)
	tx := beginTx(t, mock)
	mock.ExpectQuery("SELECT (.+) FROM audit_events (.+) DESC LIMIT 1").WithArgs("01HENTRY").WillReturnError(pgx.ErrNoRows)

	ev, err := NewAuditRepository(mock).Last(context.Background(), tx, "01HENTRY")
	if err != nil || ev != nil {
		t.Fatalf("expected no event, got %v, %v", ev, err)
	}
}

func TestULIDGeneratorGeneratesUniqueIDs(t *testing.T) {
	g := NewULIDGenerator()
	a, b := g.Generate(), g.Generate()
	if len(a) != 26 || a == b {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
}
