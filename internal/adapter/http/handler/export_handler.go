package handler

import (
	"context"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iho/clinicalledger/internal/usecase"
)

// ExportLocationHeader carries the object storage location of an archived
// export.
const ExportLocationHeader = "X-Export-Location"

// Exporter defines the behavior needed by ExportHandler.
type Exporter interface {
	Export(ctx context.Context, input usecase.ExportInput) (*usecase.ExportResult, error)
}

// ExportHandler renders a patient's ledger.
type ExportHandler struct {
	exportUC Exporter
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exportUC Exporter) *ExportHandler {
	return &ExportHandler{exportUC: exportUC}
}

// Export streams the rendered ledger as an attachment. The format defaults
// to the structured document.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "structured"
	}

	result, err := h.exportUC.Export(r.Context(), usecase.ExportInput{
		PatientID:    chi.URLParam(r, "patientID"),
		Format:       format,
		IncludeAudit: parseBoolQuery(r, "include_audit", false),
		Archive:      parseBoolQuery(r, "archive", false),
	})
	if err != nil {
		writeDomainError(w, "failed to export ledger", err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Payload)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	if result.Location != "" {
		w.Header().Set(ExportLocationHeader, result.Location)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(result.Payload)
}
