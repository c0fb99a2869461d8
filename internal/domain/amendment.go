package domain

import (
	"fmt"
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// EntryUpdate is a partial update of an entry. Nil members stay unchanged; a
// non-nil empty slice or map clears the field.
type EntryUpdate struct {
	Content        *string
	TherapyMethods []string
	Measurements   map[string]decimal.Decimal

	// Immutable fields. Supplying the stored value is a no-op, anything else
	// is rejected.
	Date      *time.Time
	PatientID *string
}

// Resolve checks the update against entry and returns the resulting fields.
func (u EntryUpdate) Resolve(entry *TreatmentEntry) (EntryFields, error) {
	if u.PatientID != nil && *u.PatientID != entry.PatientID {
		return EntryFields{}, wrapField(ErrImmutableField, "patient_id")
	}
	if u.Date != nil && !NormalizeDate(*u.Date).Equal(entry.Date) {
		return EntryFields{}, wrapField(ErrImmutableField, "date")
	}

	f := entry.Fields()
	if u.Content != nil {
		f.Content = *u.Content
	}
	if u.TherapyMethods != nil {
		f.TherapyMethods = NormalizeMethods(u.TherapyMethods)
	}
	if u.Measurements != nil {
		f.Measurements = maps.Clone(u.Measurements)
	}
	return f, nil
}

// Touches reports whether the update names any amendable field.
func (u EntryUpdate) Touches() bool {
	return u.Content != nil || u.TherapyMethods != nil || u.Measurements != nil
}

func wrapField(err error, field string) error {
	return fmt.Errorf("%w: %s", err, field)
}
