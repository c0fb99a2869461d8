package export

import (
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/iho/clinicalledger/internal/domain"
)

// CBOREncoder renders the document as CBOR with the same shape as the
// structured format.
type CBOREncoder struct {
	mode cbor.EncMode
}

// NewCBOREncoder creates a CBOR encoder with deterministic map ordering and
// RFC 3339 timestamps.
func NewCBOREncoder() *CBOREncoder {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return &CBOREncoder{mode: mode}
}

func (e *CBOREncoder) Format() domain.ExportFormat { return domain.ExportFormatCBOR }
func (e *CBOREncoder) ContentType() string         { return "application/cbor" }
func (e *CBOREncoder) FileExtension() string       { return "cbor" }

// Encode writes one CBOR data item.
func (e *CBOREncoder) Encode(w io.Writer, doc *domain.LedgerDocument) error {
	return e.mode.NewEncoder(w).Encode(toWire(doc))
}
