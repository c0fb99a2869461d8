package domain

import "time"

// Ledger is the per-patient header of a treatment timeline. It exists from
// the first entry on and is never removed.
type Ledger struct {
	PatientID      string
	FirstVisitDate time.Time
	EntryCount     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WithEntry returns the ledger after an entry dated date was added. A nil
// ledger starts a new one.
func (l *Ledger) WithEntry(patientID string, date, now time.Time) *Ledger {
	if l == nil {
		return &Ledger{
			PatientID:      patientID,
			FirstVisitDate: date,
			EntryCount:     1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	next := *l
	if date.Before(next.FirstVisitDate) {
		next.FirstVisitDate = date
	}
	next.EntryCount++
	next.UpdatedAt = now
	return &next
}
