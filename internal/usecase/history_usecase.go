package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/infrastructure/logger"
	"github.com/iho/clinicalledger/internal/infrastructure/metrics"
)

// HistoryUseCase reads the audit trail of entries.
type HistoryUseCase struct {
	entryRepo EntryRepository
	auditRepo AuditRepository
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewHistoryUseCase creates a new HistoryUseCase.
func NewHistoryUseCase(entryRepo EntryRepository, auditRepo AuditRepository, m *metrics.Metrics, log zerolog.Logger) *HistoryUseCase {
	return &HistoryUseCase{
		entryRepo: entryRepo,
		auditRepo: auditRepo,
		metrics:   m,
		log:       log,
	}
}

// EntryHistory is the audit trail of one entry.
type EntryHistory struct {
	Entry  *domain.TreatmentEntry
	Events []*domain.AuditEvent
	// ChainError is nil when the hash chain verifies.
	ChainError error
}

// EntryVersion is an entry's field values as of a past version.
type EntryVersion struct {
	EntryID    string
	PatientID  string
	Date       time.Time
	Version    int64
	Fields     domain.EntryFields
	RecordedAt time.Time
	ActorID    string
	Reason     string
}

// History returns the entry's events oldest first and verifies their hash
// chain.
func (uc *HistoryUseCase) History(ctx context.Context, patientID, entryID string) (*EntryHistory, error) {
	entry, events, err := uc.load(ctx, patientID, entryID)
	if err != nil {
		return nil, err
	}

	h := &EntryHistory{Entry: entry, Events: events}
	if err := domain.VerifyChain(events); err != nil {
		h.ChainError = err

		l := logger.FromContext(ctx, uc.log)
		l.Error().
			Str("patient_id", patientID).
			Str("entry_id", entryID).
			Int("events", len(events)).
			Msg("audit hash chain verification failed")

		if uc.metrics != nil {
			uc.metrics.HashChainFailures.Inc()
		}
	}

	return h, nil
}

// VersionAt reconstructs the entry's fields as of atVersion by replaying the
// create event and the amendments up to that version.
func (uc *HistoryUseCase) VersionAt(ctx context.Context, patientID, entryID string, atVersion int64) (*EntryVersion, error) {
	entry, events, err := uc.load(ctx, patientID, entryID)
	if err != nil {
		return nil, err
	}

	if atVersion < 1 || atVersion > entry.Version {
		return nil, fmt.Errorf("%w: version %d of entry %s (current %d)",
			domain.ErrVersionNotFound, atVersion, entryID, entry.Version)
	}

	fields, err := domain.FoldEvents(events, atVersion)
	if err != nil {
		return nil, err
	}

	v := &EntryVersion{
		EntryID:   entry.ID,
		PatientID: entry.PatientID,
		Date:      entry.Date,
		Version:   atVersion,
		Fields:    fields,
	}
	for _, ev := range events {
		if ev.NewVersion == atVersion {
			v.RecordedAt = ev.Timestamp
			v.ActorID = ev.ActorID
			v.Reason = ev.Reason
			break
		}
	}

	return v, nil
}

func (uc *HistoryUseCase) load(ctx context.Context, patientID, entryID string) (*domain.TreatmentEntry, []*domain.AuditEvent, error) {
	entry, err := uc.entryRepo.Get(ctx, patientID, entryID)
	if err != nil {
		return nil, nil, domain.StorageError("get entry", err)
	}

	events, err := uc.auditRepo.History(ctx, entryID)
	if err != nil {
		return nil, nil, domain.StorageError("read audit history", err)
	}

	// Events committed after the entry read belong to later versions.
	visible := make([]*domain.AuditEvent, 0, len(events))
	for _, ev := range events {
		if ev.NewVersion <= entry.Version {
			visible = append(visible, ev)
		}
	}

	return entry, visible, nil
}
