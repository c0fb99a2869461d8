package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/iho/clinicalledger/internal/domain"
)

var tableHeader = []string{
	"date",
	"elapsed_days",
	"elapsed_weeks",
	"remainder_days",
	"marker",
	"entry_id",
	"version",
	"content",
	"therapy_methods",
	"measurements",
	"last_amended_at",
}

// TableEncoder renders the document as CSV, one row per entry.
type TableEncoder struct{}

// NewTableEncoder creates a new TableEncoder.
func NewTableEncoder() *TableEncoder {
	return &TableEncoder{}
}

func (e *TableEncoder) Format() domain.ExportFormat { return domain.ExportFormatTable }
func (e *TableEncoder) ContentType() string         { return "text/csv; charset=utf-8" }
func (e *TableEncoder) FileExtension() string       { return "csv" }

// Encode writes a header row followed by the records. Multi-valued fields
// are joined with ';'. The audit_trail column is present only when the
// document includes audit events.
func (e *TableEncoder) Encode(w io.Writer, doc *domain.LedgerDocument) error {
	cw := csv.NewWriter(w)

	header := tableHeader
	if doc.IncludesAudit {
		header = append(header[:len(header):len(header)], "audit_trail")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range doc.Records {
		row := []string{
			r.Date.Format(domain.DateLayout),
			strconv.Itoa(r.Annotation.ElapsedDays),
			strconv.Itoa(r.Annotation.ElapsedWeeks),
			strconv.Itoa(r.Annotation.RemainderDays),
			r.Annotation.Marker(),
			r.EntryID,
			strconv.FormatInt(r.Version, 10),
			r.Content,
			joinMethods(r.TherapyMethods),
			joinMeasurements(r.Measurements),
			formatOptionalTime(r.LastAmendedAt),
		}
		if doc.IncludesAudit {
			row = append(row, joinAudit(r.Audit))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write entry %s: %w", r.EntryID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func joinMethods(methods []domain.TherapyMethod) string {
	codes := make([]string, 0, len(methods))
	for _, m := range methods {
		codes = append(codes, m.Code)
	}
	return strings.Join(codes, ";")
}

func joinMeasurements(ms []domain.Measurement) string {
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		parts = append(parts, m.Name+"="+m.Value.String())
	}
	return strings.Join(parts, ";")
}

func joinAudit(events []*domain.AuditEvent) string {
	parts := make([]string, 0, len(events))
	for _, ev := range events {
		p := fmt.Sprintf("v%d %s by %s at %s", ev.NewVersion, ev.Action, ev.ActorID, ev.Timestamp.UTC().Format(time.RFC3339))
		if ev.Reason != "" {
			p += ": " + ev.Reason
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ";")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
