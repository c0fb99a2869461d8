package memory

import (
	"context"
	"time"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	store *Store
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(store *Store) *LedgerRepository {
	return &LedgerRepository{store: store}
}

// Get returns the patient's ledger header.
func (r *LedgerRepository) Get(ctx context.Context, patientID string) (*domain.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	l, ok := r.store.ledgers[patientID]
	if !ok {
		return nil, domain.ErrLedgerNotFound
	}
	c := *l
	return &c, nil
}

// RecordEntry stages the ledger update. The returned ledger reflects the
// state committed so far; the update itself is applied against the state at
// commit time.
func (r *LedgerRepository) RecordEntry(ctx context.Context, tx usecase.Transaction, patientID string, date, now time.Time) (*domain.Ledger, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = t.stage(op{
		apply: func(s *Store) {
			s.ledgers[patientID] = s.ledgers[patientID].WithEntry(patientID, date, now)
		},
	})
	if err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.store.ledgers[patientID].WithEntry(patientID, date, now), nil
}
