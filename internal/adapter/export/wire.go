// Package export holds the encoders that render a ledger document.
package export

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

// Encoders returns one encoder per supported format.
func Encoders(print PrintOptions) []usecase.Encoder {
	return []usecase.Encoder{
		NewPrintEncoder(print),
		NewTableEncoder(),
		NewStructuredEncoder(),
		NewCBOREncoder(),
	}
}

// The wire types below are shared by the structured and CBOR encoders.
// Decimal values travel as strings so that no precision is lost.

type documentWire struct {
	PatientID      string       `json:"patient_id"`
	GeneratedAt    time.Time    `json:"generated_at"`
	FirstVisitDate *string      `json:"first_visit_date"`
	IncludesAudit  bool         `json:"includes_audit"`
	Entries        []recordWire `json:"entries"`
}

type recordWire struct {
	EntryID        string            `json:"entry_id"`
	Date           string            `json:"date"`
	Elapsed        elapsedWire       `json:"elapsed"`
	Content        string            `json:"content"`
	TherapyMethods []methodWire      `json:"therapy_methods"`
	Measurements   []measurementWire `json:"measurements"`
	Version        int64             `json:"version"`
	LastAmendedAt  *time.Time        `json:"last_amended_at,omitempty"`
	Audit          []auditWire       `json:"audit,omitempty"`
}

type elapsedWire struct {
	Days          int    `json:"days"`
	Weeks         int    `json:"weeks"`
	RemainderDays int    `json:"remainder_days"`
	Marker        string `json:"marker"`
}

type methodWire struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

type measurementWire struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type auditWire struct {
	ID              string   `json:"id"`
	Action          string   `json:"action"`
	ActorID         string   `json:"actor_id"`
	Timestamp       string   `json:"timestamp"`
	Reason          string   `json:"reason,omitempty"`
	PreviousVersion *int64   `json:"previous_version"`
	NewVersion      int64    `json:"new_version"`
	Diff            diffWire `json:"diff"`
	PreviousHash    string   `json:"previous_hash,omitempty"`
	Hash            string   `json:"hash"`
}

type diffWire struct {
	Content        *domain.ContentChange        `json:"content,omitempty"`
	TherapyMethods *domain.TherapyMethodsChange `json:"therapy_methods,omitempty"`
	Measurements   []measurementChangeWire      `json:"measurements,omitempty"`
}

type measurementChangeWire struct {
	Name   string  `json:"name"`
	Before *string `json:"before"`
	After  *string `json:"after"`
}

func toWire(doc *domain.LedgerDocument) documentWire {
	w := documentWire{
		PatientID:     doc.PatientID,
		GeneratedAt:   doc.GeneratedAt,
		IncludesAudit: doc.IncludesAudit,
		Entries:       make([]recordWire, 0, len(doc.Records)),
	}
	if doc.FirstVisitDate != nil {
		s := doc.FirstVisitDate.Format(domain.DateLayout)
		w.FirstVisitDate = &s
	}

	for _, r := range doc.Records {
		rw := recordWire{
			EntryID: r.EntryID,
			Date:    r.Date.Format(domain.DateLayout),
			Elapsed: elapsedWire{
				Days:          r.Annotation.ElapsedDays,
				Weeks:         r.Annotation.ElapsedWeeks,
				RemainderDays: r.Annotation.RemainderDays,
				Marker:        r.Annotation.Marker(),
			},
			Content:        r.Content,
			TherapyMethods: make([]methodWire, 0, len(r.TherapyMethods)),
			Measurements:   make([]measurementWire, 0, len(r.Measurements)),
			Version:        r.Version,
			LastAmendedAt:  r.LastAmendedAt,
		}
		for _, m := range r.TherapyMethods {
			rw.TherapyMethods = append(rw.TherapyMethods, methodWire{Code: m.Code, Label: m.Label})
		}
		for _, m := range r.Measurements {
			rw.Measurements = append(rw.Measurements, measurementWire{Name: m.Name, Value: m.Value.String()})
		}
		for _, ev := range r.Audit {
			rw.Audit = append(rw.Audit, auditToWire(ev))
		}
		w.Entries = append(w.Entries, rw)
	}

	return w
}

func auditToWire(ev *domain.AuditEvent) auditWire {
	aw := auditWire{
		ID:              ev.ID,
		Action:          string(ev.Action),
		ActorID:         ev.ActorID,
		Timestamp:       ev.Timestamp.UTC().Format(time.RFC3339Nano),
		Reason:          ev.Reason,
		PreviousVersion: ev.PreviousVersion,
		NewVersion:      ev.NewVersion,
		Diff: diffWire{
			Content:        ev.Diff.Content,
			TherapyMethods: ev.Diff.TherapyMethods,
		},
		PreviousHash: ev.PreviousHash,
		Hash:         ev.Hash,
	}
	for _, name := range slices.Sorted(maps.Keys(ev.Diff.Measurements)) {
		ch := ev.Diff.Measurements[name]
		aw.Diff.Measurements = append(aw.Diff.Measurements, measurementChangeWire{
			Name:   name,
			Before: decimalString(ch.Before),
			After:  decimalString(ch.After),
		})
	}
	return aw
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
