package memory

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	store *Store
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(store *Store) *EntryRepository {
	return &EntryRepository{store: store}
}

// Put stages the entry. The version check runs now and again at commit.
func (r *EntryRepository) Put(ctx context.Context, tx usecase.Transaction, entry *domain.TreatmentEntry) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	staged := entry.Clone()
	check := func(s *Store) error { return s.checkVersion(staged) }

	r.store.mu.RLock()
	err = check(r.store)
	r.store.mu.RUnlock()
	if err != nil {
		return err
	}

	return t.stage(op{
		check: check,
		apply: func(s *Store) {
			byID, ok := s.entries[staged.PatientID]
			if !ok {
				byID = make(map[string]*domain.TreatmentEntry)
				s.entries[staged.PatientID] = byID
			}
			byID[staged.ID] = staged
		},
	})
}

func (s *Store) checkVersion(entry *domain.TreatmentEntry) error {
	stored, ok := s.entries[entry.PatientID][entry.ID]
	switch {
	case !ok && entry.Version != 1:
		return fmt.Errorf("%w: new entry %s must start at version 1, got %d",
			domain.ErrVersionConflict, entry.ID, entry.Version)
	case ok && entry.Version <= stored.Version:
		return fmt.Errorf("%w: entry %s at version %d, got %d",
			domain.ErrVersionConflict, entry.ID, stored.Version, entry.Version)
	}
	return nil
}

// Get returns a copy of the committed entry.
func (r *EntryRepository) Get(ctx context.Context, patientID, entryID string) (*domain.TreatmentEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	entry, ok := r.store.entries[patientID][entryID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return entry.Clone(), nil
}

// GetForUpdate is Get; callers serialize on the entry through an
// EntryLocker and Put re-checks the version at commit.
func (r *EntryRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, patientID, entryID string) (*domain.TreatmentEntry, error) {
	if _, err := asTx(tx); err != nil {
		return nil, err
	}
	return r.Get(ctx, patientID, entryID)
}

// ListByPatient yields a snapshot of the patient's entries in timeline order.
func (r *EntryRepository) ListByPatient(ctx context.Context, patientID string) iter.Seq2[*domain.TreatmentEntry, error] {
	return func(yield func(*domain.TreatmentEntry, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		r.store.mu.RLock()
		snapshot := make([]*domain.TreatmentEntry, 0, len(r.store.entries[patientID]))
		for _, e := range r.store.entries[patientID] {
			snapshot = append(snapshot, e.Clone())
		}
		r.store.mu.RUnlock()

		slices.SortFunc(snapshot, domain.CompareEntries)

		for _, e := range snapshot {
			if !yield(e, nil) {
				return
			}
		}
	}
}
