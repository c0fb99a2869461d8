package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

// Validation constants
const (
	DefaultMinReasonLength = 10
	MaxContentLength       = 20000
	MaxReasonLength        = 2000
	MaxMeasurements        = 64
	MaxMeasurementName     = 64
	MaxIDLength            = 128
)

// DisplayWidth returns the number of terminal columns s occupies. Wide and
// full-width East Asian characters count as two.
func DisplayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

// ValidateContent validates the free-text treatment description.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrValidation, MaxContentLength)
	}
	return nil
}

// ValidateReason validates an amendment justification. Length is measured in
// display columns so that full-width text is not penalised.
func ValidateReason(reason string, minLength int) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if DisplayWidth(reason) < minLength {
		return fmt.Errorf("%w: minimum length is %d", ErrReasonTooShort, minLength)
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return fmt.Errorf("%w: reason exceeds %d characters", ErrValidation, MaxReasonLength)
	}
	return nil
}

// ValidateMeasurements validates metric names.
func ValidateMeasurements(m map[string]decimal.Decimal) error {
	if len(m) > MaxMeasurements {
		return fmt.Errorf("%w: more than %d metrics", ErrInvalidMeasurement, MaxMeasurements)
	}
	for name := range m {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: metric name cannot be empty", ErrInvalidMeasurement)
		}
		if utf8.RuneCountInString(name) > MaxMeasurementName {
			return fmt.Errorf("%w: metric name %q is too long", ErrInvalidMeasurement, name)
		}
	}
	return nil
}

// ValidateIdentity validates the patient and actor identifiers.
func ValidateIdentity(patientID, actorID string) error {
	if strings.TrimSpace(patientID) == "" {
		return ErrMissingPatientID
	}
	if len(patientID) > MaxIDLength {
		return fmt.Errorf("%w: patient id is too long", ErrValidation)
	}
	if strings.TrimSpace(actorID) == "" {
		return ErrMissingActorID
	}
	return nil
}

// ValidateEntryDate rejects dates after today in the clinic's time zone.
func ValidateEntryDate(date, now time.Time, loc *time.Location) error {
	if date.IsZero() {
		return ErrMissingDate
	}
	if loc == nil {
		loc = time.UTC
	}
	today := NormalizeDate(now.In(loc))
	if NormalizeDate(date).After(today) {
		return fmt.Errorf("%w: %s is after %s", ErrFutureDate, date.Format(DateLayout), today.Format(DateLayout))
	}
	return nil
}
