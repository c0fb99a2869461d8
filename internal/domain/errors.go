package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the ledger wraps exactly one of these,
// so callers can branch with errors.Is on the kind alone.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStorage    = errors.New("storage error")
)

// ErrorKind is the stable, machine-readable name of an error kind.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindStorage    ErrorKind = "storage"
	KindUnknown    ErrorKind = "unknown"
)

var (
	// Entry errors
	ErrEntryNotFound        = fmt.Errorf("%w: entry not found", ErrNotFound)
	ErrLedgerNotFound       = fmt.Errorf("%w: ledger not found", ErrNotFound)
	ErrVersionNotFound      = fmt.Errorf("%w: version not found", ErrNotFound)
	ErrVersionConflict      = fmt.Errorf("%w: entry version is stale", ErrConflict)
	ErrDuplicateEntry       = fmt.Errorf("%w: entry already exists", ErrConflict)
	ErrEmptyContent         = fmt.Errorf("%w: content cannot be empty", ErrValidation)
	ErrFutureDate           = fmt.Errorf("%w: entry date is in the future", ErrValidation)
	ErrUnknownTherapyMethod = fmt.Errorf("%w: unknown therapy method", ErrValidation)
	ErrInvalidMeasurement   = fmt.Errorf("%w: invalid measurement", ErrValidation)
	ErrMissingPatientID     = fmt.Errorf("%w: patient id is required", ErrValidation)
	ErrMissingActorID       = fmt.Errorf("%w: actor id is required", ErrValidation)
	ErrMissingDate          = fmt.Errorf("%w: entry date is required", ErrValidation)

	// Amendment errors
	ErrReasonRequired  = fmt.Errorf("%w: amendment reason is required", ErrValidation)
	ErrReasonTooShort  = fmt.Errorf("%w: amendment reason is too short", ErrValidation)
	ErrImmutableField  = fmt.Errorf("%w: field cannot be amended", ErrValidation)
	ErrNoChanges       = fmt.Errorf("%w: amendment changes no fields", ErrValidation)
	ErrInvalidVersion  = fmt.Errorf("%w: expected version must be positive", ErrValidation)
	ErrBrokenHashChain = fmt.Errorf("%w: audit hash chain is broken", ErrConflict)

	// Timeline and export errors
	ErrDateBeforeFirstVisit = fmt.Errorf("%w: entry date precedes first visit", ErrValidation)
	ErrUnknownFormat        = fmt.Errorf("%w: unknown export format", ErrValidation)
	ErrArchiveDisabled      = fmt.Errorf("%w: export archiving is not configured", ErrValidation)
)

// KindOf reports the kind of err.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindUnknown
	}
}

// StorageError wraps an infrastructure failure so that it matches ErrStorage
// while keeping the original cause reachable through errors.Is/As.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &storageError{op: op, err: err}
}

type storageError struct {
	op  string
	err error
}

func (e *storageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, e.op, e.err)
}

func (e *storageError) Unwrap() []error {
	return []error{ErrStorage, e.err}
}
