package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/iho/clinicalledger/internal/domain"
)

// LedgerUseCase serves read access to a patient's annotated timeline.
type LedgerUseCase struct {
	entryRepo  EntryRepository
	ledgerRepo LedgerRepository
	catalog    *domain.TherapyCatalog
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(entryRepo EntryRepository, ledgerRepo LedgerRepository, catalog *domain.TherapyCatalog) *LedgerUseCase {
	return &LedgerUseCase{
		entryRepo:  entryRepo,
		ledgerRepo: ledgerRepo,
		catalog:    catalog,
	}
}

// AnnotatedEntry is an entry with its elapsed-time annotation.
type AnnotatedEntry struct {
	Entry      *domain.TreatmentEntry
	Annotation domain.Annotation
}

// Timeline is the ordered, annotated view of a patient's ledger.
type Timeline struct {
	PatientID      string
	FirstVisitDate *time.Time
	Entries        []AnnotatedEntry
}

// Timeline returns the patient's entries in order, each annotated relative
// to the first visit. A patient without entries has an empty timeline.
func (uc *LedgerUseCase) Timeline(ctx context.Context, patientID string) (*Timeline, error) {
	if patientID == "" {
		return nil, domain.ErrMissingPatientID
	}

	var entries []*domain.TreatmentEntry
	for entry, err := range uc.entryRepo.ListByPatient(ctx, patientID) {
		if err != nil {
			return nil, domain.StorageError("list entries", err)
		}
		entries = append(entries, entry)
	}

	timeline := &Timeline{PatientID: patientID, Entries: make([]AnnotatedEntry, 0, len(entries))}
	if len(entries) == 0 {
		return timeline, nil
	}

	firstVisit, err := uc.firstVisitDate(ctx, patientID, entries[0])
	if err != nil {
		return nil, err
	}
	timeline.FirstVisitDate = &firstVisit

	for _, entry := range entries {
		annotation, err := domain.Annotate(entry, firstVisit)
		if err != nil {
			return nil, err
		}
		timeline.Entries = append(timeline.Entries, AnnotatedEntry{Entry: entry, Annotation: annotation})
	}

	return timeline, nil
}

// firstVisitDate prefers the ledger header. Entries are read before the
// header, so an entry created in between can only move the header earlier.
func (uc *LedgerUseCase) firstVisitDate(ctx context.Context, patientID string, earliest *domain.TreatmentEntry) (time.Time, error) {
	ledger, err := uc.ledgerRepo.Get(ctx, patientID)
	switch {
	case errors.Is(err, domain.ErrLedgerNotFound):
		return earliest.Date, nil
	case err != nil:
		return time.Time{}, domain.StorageError("get ledger", err)
	}

	if earliest.Date.Before(ledger.FirstVisitDate) {
		return earliest.Date, nil
	}
	return ledger.FirstVisitDate, nil
}

// GetEntry returns one annotated entry.
func (uc *LedgerUseCase) GetEntry(ctx context.Context, patientID, entryID string) (*AnnotatedEntry, error) {
	entry, err := uc.entryRepo.Get(ctx, patientID, entryID)
	if err != nil {
		return nil, domain.StorageError("get entry", err)
	}

	firstVisit, err := uc.firstVisitDate(ctx, patientID, entry)
	if err != nil {
		return nil, err
	}

	annotation, err := domain.Annotate(entry, firstVisit)
	if err != nil {
		return nil, err
	}

	return &AnnotatedEntry{Entry: entry, Annotation: annotation}, nil
}

// TherapyMethods returns the configured therapy catalog.
func (uc *LedgerUseCase) TherapyMethods() []domain.TherapyMethod {
	return uc.catalog.Methods()
}
