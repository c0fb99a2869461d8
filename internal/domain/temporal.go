package domain

import (
	"fmt"
	"time"
)

// Annotation is elapsed-time display metadata of an entry relative to the
// patient's first visit. It is derived on read and never stored.
type Annotation struct {
	ElapsedDays   int
	ElapsedWeeks  int
	RemainderDays int
}

// Marker renders the annotation as weeks and days, e.g. "3w2d".
func (a Annotation) Marker() string {
	return fmt.Sprintf("%dw%dd", a.ElapsedWeeks, a.RemainderDays)
}

// Annotate computes the elapsed time between the first visit and the entry.
func Annotate(entry *TreatmentEntry, firstVisitDate time.Time) (Annotation, error) {
	days := DaysBetween(firstVisitDate, entry.Date)
	if days < 0 {
		return Annotation{}, fmt.Errorf("%w: entry %s dated %s, first visit %s",
			ErrDateBeforeFirstVisit, entry.ID,
			entry.Date.Format(DateLayout), firstVisitDate.Format(DateLayout))
	}
	return Annotation{
		ElapsedDays:   days,
		ElapsedWeeks:  days / 7,
		RemainderDays: days % 7,
	}, nil
}

const secondsPerDay = 24 * 60 * 60

// DaysBetween returns the number of calendar days from a to b. It counts on
// Unix seconds, since a time.Duration overflows past about 292 years.
func DaysBetween(a, b time.Time) int {
	from, to := NormalizeDate(a), NormalizeDate(b)
	return int((to.Unix() - from.Unix()) / secondsPerDay)
}
