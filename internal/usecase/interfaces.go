package usecase

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/iho/clinicalledger/internal/domain"
)

// EntryRepository defines data access for treatment entries.
type EntryRepository interface {
	// Put inserts entry or overwrites the stored entry with the same id. It
	// fails with domain.ErrVersionConflict unless the version advances.
	Put(ctx context.Context, tx Transaction, entry *domain.TreatmentEntry) error
	Get(ctx context.Context, patientID, entryID string) (*domain.TreatmentEntry, error)
	GetForUpdate(ctx context.Context, tx Transaction, patientID, entryID string) (*domain.TreatmentEntry, error)
	// ListByPatient yields the patient's entries in timeline order. Every
	// range over the returned sequence reads a fresh snapshot.
	ListByPatient(ctx context.Context, patientID string) iter.Seq2[*domain.TreatmentEntry, error]
}

// LedgerRepository defines data access for per-patient ledger headers.
type LedgerRepository interface {
	Get(ctx context.Context, patientID string) (*domain.Ledger, error)
	// RecordEntry creates the ledger on the first entry, otherwise moves the
	// first visit date back when date is earlier and bumps the entry count.
	RecordEntry(ctx context.Context, tx Transaction, patientID string, date, now time.Time) (*domain.Ledger, error)
}

// AuditRepository defines data access for the append-only audit log.
type AuditRepository interface {
	Append(ctx context.Context, tx Transaction, event *domain.AuditEvent) error
	// History returns the events of an entry in commit order, oldest first.
	History(ctx context.Context, entryID string) ([]*domain.AuditEvent, error)
	// Last returns the newest event of an entry, or nil when there is none.
	Last(ctx context.Context, tx Transaction, entryID string) (*domain.AuditEvent, error)
}

// Transaction represents a storage transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// EntryLocker provides mutual exclusion keyed by entry id.
type EntryLocker interface {
	// Lock blocks until the key is held or ctx is done.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Retrier re-runs an operation on transient storage failures.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// Encoder renders a ledger document in one export format.
type Encoder interface {
	Format() domain.ExportFormat
	ContentType() string
	FileExtension() string
	Encode(w io.Writer, doc *domain.LedgerDocument) error
}

// ExportArchiver stores rendered exports in object storage.
type ExportArchiver interface {
	// Archive stores payload under key and returns its location.
	Archive(ctx context.Context, key, contentType string, payload []byte) (string, error)
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops the key so the request can be retried.
	Release(ctx context.Context, key string) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type noRetry struct{}

func (noRetry) Retry(_ context.Context, operation func() error) error {
	return operation()
}
