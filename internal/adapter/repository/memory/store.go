// Package memory holds in-process implementations of the ledger stores,
// used by tests and by the demo storage backend.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

var errTxDone = errors.New("transaction already committed or rolled back")

// Store is the shared state behind the memory repositories.
type Store struct {
	mu      sync.RWMutex
	entries map[string]map[string]*domain.TreatmentEntry // patient -> entry id -> entry
	ledgers map[string]*domain.Ledger
	events  map[string][]*domain.AuditEvent // entry id -> events in commit order
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]map[string]*domain.TreatmentEntry),
		ledgers: make(map[string]*domain.Ledger),
		events:  make(map[string][]*domain.AuditEvent),
	}
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// NewTxManager creates a new TxManager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin starts a new transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: m.store}, nil
}

// op is one staged write. check runs before any op applies, with the store
// write lock held, so a failing check leaves the store untouched.
type op struct {
	check func(s *Store) error
	apply func(s *Store)
}

// Tx stages writes and applies them all at commit.
type Tx struct {
	mu   sync.Mutex
	ops  []op
	done bool

	store *Store
}

func (t *Tx) stage(o op) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return errTxDone
	}
	t.ops = append(t.ops, o)
	return nil
}

// Commit validates and applies the staged writes atomically.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return errTxDone
	}
	t.done = true

	if err := ctx.Err(); err != nil {
		return err
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range t.ops {
		if o.check == nil {
			continue
		}
		if err := o.check(s); err != nil {
			return err
		}
	}
	for _, o := range t.ops {
		o.apply(s)
	}
	return nil
}

// Rollback discards the staged writes. It is a no-op after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done = true
	t.ops = nil
	return nil
}

func asTx(tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, errors.New("memory: foreign transaction")
	}
	return t, nil
}
