package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/infrastructure/logger"
	"github.com/iho/clinicalledger/internal/infrastructure/metrics"
	"github.com/iho/clinicalledger/internal/infrastructure/tracing"
)

// AmendmentPolicy holds the configurable rules of the amendment workflow.
type AmendmentPolicy struct {
	MinReasonLength int
	// Location is the clinic time zone used to decide whether a date lies in
	// the future.
	Location *time.Location
}

// DefaultAmendmentPolicy returns the policy used when none is configured.
func DefaultAmendmentPolicy() AmendmentPolicy {
	return AmendmentPolicy{
		MinReasonLength: domain.DefaultMinReasonLength,
		Location:        time.UTC,
	}
}

// AmendmentUseCase is the only writer of entries and audit events.
type AmendmentUseCase struct {
	txManager  TransactionManager
	entryRepo  EntryRepository
	ledgerRepo LedgerRepository
	auditRepo  AuditRepository
	idGen      IDGenerator
	locker     EntryLocker
	catalog    *domain.TherapyCatalog
	policy     AmendmentPolicy

	clock   Clock
	retrier Retrier
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// AmendmentOption configures optional collaborators of AmendmentUseCase.
type AmendmentOption func(*AmendmentUseCase)

// WithClock overrides the wall clock.
func WithClock(c Clock) AmendmentOption {
	return func(uc *AmendmentUseCase) { uc.clock = c }
}

// WithRetrier re-runs transactions that fail transiently.
func WithRetrier(r Retrier) AmendmentOption {
	return func(uc *AmendmentUseCase) { uc.retrier = r }
}

// WithMetrics records mutation metrics.
func WithMetrics(m *metrics.Metrics) AmendmentOption {
	return func(uc *AmendmentUseCase) { uc.metrics = m }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l zerolog.Logger) AmendmentOption {
	return func(uc *AmendmentUseCase) { uc.log = l }
}

// NewAmendmentUseCase creates a new AmendmentUseCase.
func NewAmendmentUseCase(
	txManager TransactionManager,
	entryRepo EntryRepository,
	ledgerRepo LedgerRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	locker EntryLocker,
	catalog *domain.TherapyCatalog,
	policy AmendmentPolicy,
	opts ...AmendmentOption,
) *AmendmentUseCase {
	if policy.MinReasonLength <= 0 {
		policy.MinReasonLength = domain.DefaultMinReasonLength
	}
	if policy.Location == nil {
		policy.Location = time.UTC
	}

	uc := &AmendmentUseCase{
		txManager:  txManager,
		entryRepo:  entryRepo,
		ledgerRepo: ledgerRepo,
		auditRepo:  auditRepo,
		idGen:      idGen,
		locker:     locker,
		catalog:    catalog,
		policy:     policy,
		clock:      SystemClock{},
		retrier:    noRetry{},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// CreateEntryInput represents input for creating a treatment entry.
type CreateEntryInput struct {
	PatientID      string
	Date           time.Time
	Content        string
	TherapyMethods []string
	Measurements   map[string]decimal.Decimal
	ActorID        string
}

// AmendEntryInput represents input for amending a treatment entry.
type AmendEntryInput struct {
	PatientID string
	EntryID   string
	// ExpectedVersion is the version the caller last observed.
	ExpectedVersion int64
	Update          domain.EntryUpdate
	Reason          string
	ActorID         string
}

// CreateEntry validates and stores a new entry at version 1, records it in
// the patient's ledger and appends the create event, all in one transaction.
func (uc *AmendmentUseCase) CreateEntry(ctx context.Context, input CreateEntryInput) (entry *domain.TreatmentEntry, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "ledger.create_entry",
		attribute.String("patient.id", input.PatientID))
	start := time.Now()
	defer func() {
		endSpan(err)
		uc.observe(ctx, "create", start, err)
	}()

	// 1. Validate inputs before taking any lock
	if err := uc.validateCreate(input); err != nil {
		return nil, err
	}

	now := domain.Timestamp(uc.clock.Now())
	entry = &domain.TreatmentEntry{
		ID:             uc.idGen.Generate(),
		PatientID:      input.PatientID,
		Date:           domain.NormalizeDate(input.Date),
		Content:        input.Content,
		TherapyMethods: domain.NormalizeMethods(input.TherapyMethods),
		Measurements:   input.Measurements,
		Version:        1,
		CreatedAt:      now,
	}
	if entry.Measurements == nil {
		entry.Measurements = map[string]decimal.Decimal{}
	}

	// 2. Serialize on the entry id
	unlock, err := uc.lock(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 3. Entry, ledger and create event in one transaction
	err = uc.retrier.Retry(ctx, func() error {
		return uc.inTx(ctx, func(txCtx context.Context, tx Transaction) error {
			if err := uc.entryRepo.Put(txCtx, tx, entry); err != nil {
				return domain.StorageError("put entry", err)
			}

			if _, err := uc.ledgerRepo.RecordEntry(txCtx, tx, entry.PatientID, entry.Date, now); err != nil {
				return domain.StorageError("record ledger entry", err)
			}

			event := &domain.AuditEvent{
				ID:         uc.idGen.Generate(),
				EntryID:    entry.ID,
				PatientID:  entry.PatientID,
				ActorID:    input.ActorID,
				Action:     domain.AuditActionCreate,
				Timestamp:  now,
				NewVersion: 1,
				Diff:       domain.ComputeDiff(domain.EntryFields{}, entry.Fields()),
			}
			event.Seal("")

			if err := uc.auditRepo.Append(txCtx, tx, event); err != nil {
				return domain.StorageError("append audit event", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	tracing.SetAttributes(ctx, attribute.String("entry.id", entry.ID))
	l := logger.FromContext(ctx, uc.log)
	l.Info().
		Str("patient_id", entry.PatientID).
		Str("entry_id", entry.ID).
		Str("actor_id", input.ActorID).
		Str("date", entry.Date.Format(domain.DateLayout)).
		Msg("entry created")

	return entry.Clone(), nil
}

// AmendEntry applies a justified partial update to an existing entry,
// bumps its version and appends the amend event, all in one transaction.
func (uc *AmendmentUseCase) AmendEntry(ctx context.Context, input AmendEntryInput) (entry *domain.TreatmentEntry, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "ledger.amend_entry",
		attribute.String("patient.id", input.PatientID),
		attribute.String("entry.id", input.EntryID),
		attribute.Int64("entry.expected_version", input.ExpectedVersion))
	start := time.Now()
	defer func() {
		endSpan(err)
		uc.observe(ctx, "amend", start, err)
	}()

	// 1. Validate inputs before taking any lock
	if err := uc.validateAmend(input); err != nil {
		return nil, err
	}

	// 2. Serialize on the entry id; a second caller observes our version
	unlock, err := uc.lock(ctx, input.EntryID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 3. Read, diff, store and audit in one transaction
	var event *domain.AuditEvent
	err = uc.retrier.Retry(ctx, func() error {
		return uc.inTx(ctx, func(txCtx context.Context, tx Transaction) error {
			var txErr error
			entry, event, txErr = uc.amend(txCtx, tx, input)
			return txErr
		})
	})
	if err != nil {
		return nil, err
	}

	l := logger.FromContext(ctx, uc.log)
	l.Info().
		Str("patient_id", entry.PatientID).
		Str("entry_id", entry.ID).
		Str("actor_id", input.ActorID).
		Int64("version", entry.Version).
		Strs("changed", event.Diff.ChangedFields()).
		Msg("entry amended")

	return entry.Clone(), nil
}

func (uc *AmendmentUseCase) amend(ctx context.Context, tx Transaction, input AmendEntryInput) (*domain.TreatmentEntry, *domain.AuditEvent, error) {
	current, err := uc.entryRepo.GetForUpdate(ctx, tx, input.PatientID, input.EntryID)
	if err != nil {
		return nil, nil, domain.StorageError("get entry", err)
	}

	// Immutable field violations win over a stale version.
	fields, err := input.Update.Resolve(current)
	if err != nil {
		return nil, nil, err
	}

	if current.Version != input.ExpectedVersion {
		return nil, nil, fmt.Errorf("%w: expected version %d, current version %d",
			domain.ErrVersionConflict, input.ExpectedVersion, current.Version)
	}

	diff := domain.ComputeDiff(current.Fields(), fields)
	if diff.IsEmpty() {
		return nil, nil, domain.ErrNoChanges
	}

	now := domain.Timestamp(uc.clock.Now())
	next := current.WithFields(fields)
	next.Version = current.Version + 1
	next.LastAmendedAt = &now
	if next.Measurements == nil {
		next.Measurements = map[string]decimal.Decimal{}
	}

	if err := uc.entryRepo.Put(ctx, tx, next); err != nil {
		return nil, nil, domain.StorageError("put entry", err)
	}

	last, err := uc.auditRepo.Last(ctx, tx, current.ID)
	if err != nil {
		return nil, nil, domain.StorageError("read last audit event", err)
	}
	previousHash := ""
	if last != nil {
		previousHash = last.Hash
	}

	previousVersion := current.Version
	event := &domain.AuditEvent{
		ID:              uc.idGen.Generate(),
		EntryID:         current.ID,
		PatientID:       current.PatientID,
		ActorID:         input.ActorID,
		Action:          domain.AuditActionAmend,
		Timestamp:       now,
		Reason:          input.Reason,
		PreviousVersion: &previousVersion,
		NewVersion:      next.Version,
		Diff:            diff,
	}
	event.Seal(previousHash)

	if err := uc.auditRepo.Append(ctx, tx, event); err != nil {
		return nil, nil, domain.StorageError("append audit event", err)
	}

	return next, event, nil
}

// inTx runs fn in a transaction bounded by DefaultTransactionTimeout and
// commits only when fn succeeds.
func (uc *AmendmentUseCase) inTx(ctx context.Context, fn func(context.Context, Transaction) error) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return domain.StorageError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := fn(txCtx, tx); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return domain.StorageError("commit transaction", err)
	}
	return nil
}

func (uc *AmendmentUseCase) lock(ctx context.Context, entryID string) (func(), error) {
	unlock, err := uc.locker.Lock(ctx, entryID)
	if err != nil {
		return nil, domain.StorageError("acquire entry lock", err)
	}
	return unlock, nil
}

func (uc *AmendmentUseCase) validateCreate(input CreateEntryInput) error {
	if err := domain.ValidateIdentity(input.PatientID, input.ActorID); err != nil {
		return err
	}
	if err := domain.ValidateEntryDate(input.Date, uc.clock.Now(), uc.policy.Location); err != nil {
		return err
	}
	if err := domain.ValidateContent(input.Content); err != nil {
		return err
	}
	if err := uc.catalog.Validate(input.TherapyMethods); err != nil {
		return err
	}
	return domain.ValidateMeasurements(input.Measurements)
}

func (uc *AmendmentUseCase) validateAmend(input AmendEntryInput) error {
	if err := domain.ValidateIdentity(input.PatientID, input.ActorID); err != nil {
		return err
	}
	if input.EntryID == "" {
		return fmt.Errorf("%w: entry id is required", domain.ErrValidation)
	}
	if err := domain.ValidateReason(input.Reason, uc.policy.MinReasonLength); err != nil {
		return err
	}
	if input.ExpectedVersion < 1 {
		return domain.ErrInvalidVersion
	}
	if input.Update.Content != nil {
		if err := domain.ValidateContent(*input.Update.Content); err != nil {
			return err
		}
	}
	if err := uc.catalog.Validate(input.Update.TherapyMethods); err != nil {
		return err
	}
	return domain.ValidateMeasurements(input.Update.Measurements)
}

func (uc *AmendmentUseCase) observe(ctx context.Context, operation string, start time.Time, err error) {
	if err != nil {
		l := logger.FromContext(ctx, uc.log)
		l.Debug().
			Err(err).
			Str("operation", operation).
			Str("kind", string(domain.KindOf(err))).
			Msg("mutation rejected")
	}

	if uc.metrics == nil {
		return
	}

	uc.metrics.MutationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		uc.metrics.MutationRejections.WithLabelValues(operation, string(domain.KindOf(err))).Inc()
		return
	}

	switch operation {
	case "create":
		uc.metrics.EntriesCreated.Inc()
	case "amend":
		uc.metrics.EntriesAmended.Inc()
	}
}
