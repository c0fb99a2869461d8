package export

import (
	"encoding/json"
	"io"

	"github.com/iho/clinicalledger/internal/domain"
)

// StructuredEncoder renders the document as nested JSON.
type StructuredEncoder struct{}

// NewStructuredEncoder creates a new StructuredEncoder.
func NewStructuredEncoder() *StructuredEncoder {
	return &StructuredEncoder{}
}

func (e *StructuredEncoder) Format() domain.ExportFormat { return domain.ExportFormatStructured }
func (e *StructuredEncoder) ContentType() string         { return "application/json" }
func (e *StructuredEncoder) FileExtension() string       { return "json" }

// Encode writes the document as indented JSON.
func (e *StructuredEncoder) Encode(w io.Writer, doc *domain.LedgerDocument) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toWire(doc))
}
