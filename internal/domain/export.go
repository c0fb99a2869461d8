package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExportFormat selects an output encoding of a ledger export.
type ExportFormat string

const (
	ExportFormatPrint      ExportFormat = "print"
	ExportFormatTable      ExportFormat = "table"
	ExportFormatStructured ExportFormat = "structured"
	ExportFormatCBOR       ExportFormat = "cbor"
)

// ParseExportFormat parses a caller-supplied format name.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ExportFormatPrint, ExportFormatTable, ExportFormatStructured, ExportFormatCBOR:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// LedgerDocument is the format-independent view every encoder renders.
type LedgerDocument struct {
	PatientID      string
	GeneratedAt    time.Time
	FirstVisitDate *time.Time
	Records        []ExportRecord
	IncludesAudit  bool
}

// ExportRecord is one annotated entry of the document.
type ExportRecord struct {
	EntryID        string
	Date           time.Time
	Annotation     Annotation
	Content        string
	TherapyMethods []TherapyMethod
	Measurements   []Measurement
	Version        int64
	LastAmendedAt  *time.Time
	Audit          []*AuditEvent
}

// Measurement is a named metric value. Records list them sorted by name.
type Measurement struct {
	Name  string
	Value decimal.Decimal
}
