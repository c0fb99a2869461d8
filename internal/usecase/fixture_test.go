package usecase_test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iho/clinicalledger/internal/adapter/repository/memory"
	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) Generate() string { return fmt.Sprintf("id-%04d", g.n.Add(1)) }

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func mustDate(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	store     *memory.Store
	entries   *memory.EntryRepository
	ledgers   *memory.LedgerRepository
	audit     *memory.AuditRepository
	catalog   *domain.TherapyCatalog
	ids       *seqIDs
	clock     fixedClock
	amendment *usecase.AmendmentUseCase
	ledger    *usecase.LedgerUseCase
	history   *usecase.HistoryUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog, err := domain.NewTherapyCatalog(domain.DefaultTherapyMethods)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	f := &fixture{
		store:   memory.NewStore(),
		catalog: catalog,
		ids:     &seqIDs{},
		clock:   fixedClock{now: testNow},
	}
	f.entries = memory.NewEntryRepository(f.store)
	f.ledgers = memory.NewLedgerRepository(f.store)
	f.audit = memory.NewAuditRepository(f.store)

	f.amendment = usecase.NewAmendmentUseCase(
		memory.NewTxManager(f.store),
		f.entries,
		f.ledgers,
		f.audit,
		f.ids,
		memory.NewLocker(),
		catalog,
		usecase.DefaultAmendmentPolicy(),
		usecase.WithClock(f.clock),
	)
	f.ledger = usecase.NewLedgerUseCase(f.entries, f.ledgers, catalog)
	f.history = usecase.NewHistoryUseCase(f.entries, f.audit, nil, testLogger())

	return f
}
