package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

// CreateEntryRequest represents a request to record a visit.
type CreateEntryRequest struct {
	Date           string                     `json:"date"`
	Content        string                     `json:"content"`
	TherapyMethods []string                   `json:"therapy_methods,omitempty"`
	Measurements   map[string]decimal.Decimal `json:"measurements,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateEntryRequest) ToUseCaseInput(patientID, actorID string) (usecase.CreateEntryInput, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return usecase.CreateEntryInput{}, err
	}

	return usecase.CreateEntryInput{
		PatientID:      patientID,
		Date:           date,
		Content:        r.Content,
		TherapyMethods: r.TherapyMethods,
		Measurements:   r.Measurements,
		ActorID:        actorID,
	}, nil
}

// AmendEntryRequest represents an amendment. Omitted fields stay unchanged;
// an empty list or object clears the field.
type AmendEntryRequest struct {
	ExpectedVersion int64                       `json:"expected_version"`
	Reason          string                      `json:"reason"`
	Content         *string                     `json:"content,omitempty"`
	TherapyMethods  *[]string                   `json:"therapy_methods,omitempty"`
	Measurements    *map[string]decimal.Decimal `json:"measurements,omitempty"`

	// Immutable; accepted only when equal to the stored values.
	Date      *string `json:"date,omitempty"`
	PatientID *string `json:"patient_id,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *AmendEntryRequest) ToUseCaseInput(patientID, entryID, actorID string) (usecase.AmendEntryInput, error) {
	update := domain.EntryUpdate{
		Content:   r.Content,
		PatientID: r.PatientID,
	}
	if r.TherapyMethods != nil {
		update.TherapyMethods = append([]string{}, (*r.TherapyMethods)...)
	}
	if r.Measurements != nil {
		update.Measurements = make(map[string]decimal.Decimal, len(*r.Measurements))
		for name, v := range *r.Measurements {
			update.Measurements[name] = v
		}
	}
	if r.Date != nil {
		date, err := parseDate("date", *r.Date)
		if err != nil {
			return usecase.AmendEntryInput{}, err
		}
		update.Date = &date
	}

	return usecase.AmendEntryInput{
		PatientID:       patientID,
		EntryID:         entryID,
		ExpectedVersion: r.ExpectedVersion,
		Update:          update,
		Reason:          r.Reason,
		ActorID:         actorID,
	}, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, domain.ErrMissingDate
	}
	date, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", domain.ErrValidation, field, value)
	}
	return date, nil
}
