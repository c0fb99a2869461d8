package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire layout of calendar dates.
const DateLayout = "2006-01-02"

// TreatmentEntry is one visit in a patient's treatment timeline.
//
// ID, PatientID, Date and CreatedAt never change after creation. The content
// fields change only through an amendment, which also bumps Version.
type TreatmentEntry struct {
	ID             string
	PatientID      string
	Date           time.Time
	Content        string
	TherapyMethods []string
	Measurements   map[string]decimal.Decimal
	Version        int64
	CreatedAt      time.Time
	LastAmendedAt  *time.Time
}

// EntryFields is the amendable part of an entry.
type EntryFields struct {
	Content        string
	TherapyMethods []string
	Measurements   map[string]decimal.Decimal
}

// Fields returns a copy of the amendable fields.
func (e *TreatmentEntry) Fields() EntryFields {
	return EntryFields{
		Content:        e.Content,
		TherapyMethods: slices.Clone(e.TherapyMethods),
		Measurements:   maps.Clone(e.Measurements),
	}
}

// WithFields returns a copy of the entry carrying the given field values.
func (e *TreatmentEntry) WithFields(f EntryFields) *TreatmentEntry {
	c := e.Clone()
	c.Content = f.Content
	c.TherapyMethods = NormalizeMethods(f.TherapyMethods)
	c.Measurements = maps.Clone(f.Measurements)
	return c
}

// Clone returns a deep copy of the entry.
func (e *TreatmentEntry) Clone() *TreatmentEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.TherapyMethods = slices.Clone(e.TherapyMethods)
	c.Measurements = maps.Clone(e.Measurements)
	if e.LastAmendedAt != nil {
		t := *e.LastAmendedAt
		c.LastAmendedAt = &t
	}
	return &c
}

// Before reports whether e sorts before other in the timeline: by date, then
// by creation time, then by id.
func (e *TreatmentEntry) Before(other *TreatmentEntry) bool {
	return CompareEntries(e, other) < 0
}

// CompareEntries orders entries by date, creation time and id.
func CompareEntries(a, b *TreatmentEntry) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// Equal reports whether two field sets hold the same values.
func (f EntryFields) Equal(other EntryFields) bool {
	if f.Content != other.Content {
		return false
	}
	if !slices.Equal(NormalizeMethods(f.TherapyMethods), NormalizeMethods(other.TherapyMethods)) {
		return false
	}
	if len(f.Measurements) != len(other.Measurements) {
		return false
	}
	for k, v := range f.Measurements {
		ov, ok := other.Measurements[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// NormalizeDate truncates t to its calendar date at UTC midnight.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDate(t), nil
}

// NormalizeMethods returns the therapy methods as a sorted set.
func NormalizeMethods(methods []string) []string {
	if methods == nil {
		return []string{}
	}
	out := slices.Clone(methods)
	slices.Sort(out)
	return slices.Compact(out)
}
