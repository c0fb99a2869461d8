package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iho/clinicalledger/internal/adapter/http/dto"
	"github.com/iho/clinicalledger/internal/usecase"
)

// HistoryService defines the behavior needed by HistoryHandler.
type HistoryService interface {
	History(ctx context.Context, patientID, entryID string) (*usecase.EntryHistory, error)
	VersionAt(ctx context.Context, patientID, entryID string, atVersion int64) (*usecase.EntryVersion, error)
}

// HistoryHandler serves audit trails and past versions.
type HistoryHandler struct {
	historyUC HistoryService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(historyUC HistoryService) *HistoryHandler {
	return &HistoryHandler{historyUC: historyUC}
}

// History returns an entry's audit events, oldest first.
func (h *HistoryHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.historyUC.History(r.Context(), chi.URLParam(r, "patientID"), chi.URLParam(r, "entryID"))
	if err != nil {
		writeDomainError(w, "failed to load history", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.HistoryFromUseCase(history))
}

// Version reconstructs an entry as it stood at a past version.
func (h *HistoryHandler) Version(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseInt(chi.URLParam(r, "version"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version", err.Error())
		return
	}

	v, err := h.historyUC.VersionAt(r.Context(), chi.URLParam(r, "patientID"), chi.URLParam(r, "entryID"), version)
	if err != nil {
		writeDomainError(w, "failed to load version", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.VersionFromUseCase(v))
}
