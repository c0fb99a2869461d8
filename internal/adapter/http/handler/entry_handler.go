package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/clinicalledger/internal/adapter/http/dto"
	"github.com/iho/clinicalledger/internal/adapter/http/middleware"
	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

// EntryMutator defines the write behavior needed by EntryHandler.
type EntryMutator interface {
	CreateEntry(ctx context.Context, input usecase.CreateEntryInput) (*domain.TreatmentEntry, error)
	AmendEntry(ctx context.Context, input usecase.AmendEntryInput) (*domain.TreatmentEntry, error)
}

// TimelineReader defines the read behavior needed by EntryHandler.
type TimelineReader interface {
	Timeline(ctx context.Context, patientID string) (*usecase.Timeline, error)
	GetEntry(ctx context.Context, patientID, entryID string) (*usecase.AnnotatedEntry, error)
	TherapyMethods() []domain.TherapyMethod
}

// EntryHandler handles treatment entry HTTP requests.
type EntryHandler struct {
	mutator EntryMutator
	reader  TimelineReader
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(mutator EntryMutator, reader TimelineReader) *EntryHandler {
	return &EntryHandler{mutator: mutator, reader: reader}
}

// Create records a new entry in a patient's ledger.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")

	var req dto.CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(patientID, middleware.ActorID(r.Context()))
	if err != nil {
		writeDomainError(w, "invalid entry", err)
		return
	}

	entry, err := h.mutator.CreateEntry(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create entry", err)
		return
	}

	w.Header().Set("Location", r.URL.Path+"/"+entry.ID)
	writeJSON(w, http.StatusCreated, dto.EntryFromDomain(entry))
}

// Amend applies a reasoned amendment to an entry.
func (h *EntryHandler) Amend(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	entryID := chi.URLParam(r, "entryID")

	var req dto.AmendEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(patientID, entryID, middleware.ActorID(r.Context()))
	if err != nil {
		writeDomainError(w, "invalid amendment", err)
		return
	}

	entry, err := h.mutator.AmendEntry(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to amend entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntryFromDomain(entry))
}

// Timeline lists a patient's entries with elapsed-time annotations.
func (h *EntryHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := h.reader.Timeline(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		writeDomainError(w, "failed to load timeline", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TimelineFromUseCase(timeline))
}

// Get retrieves one annotated entry.
func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.reader.GetEntry(r.Context(), chi.URLParam(r, "patientID"), chi.URLParam(r, "entryID"))
	if err != nil {
		writeDomainError(w, "failed to get entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AnnotatedEntryFromUseCase(entry))
}

// TherapyMethods lists the configured therapy catalog.
func (h *EntryHandler) TherapyMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.TherapyMethodsResponse{Methods: h.reader.TherapyMethods()})
}
