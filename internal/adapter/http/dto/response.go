package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

// EntryResponse represents a treatment entry in API responses.
type EntryResponse struct {
	ID             string                     `json:"id"`
	PatientID      string                     `json:"patient_id"`
	Date           string                     `json:"date"`
	Content        string                     `json:"content"`
	TherapyMethods []string                   `json:"therapy_methods"`
	Measurements   map[string]decimal.Decimal `json:"measurements"`
	Version        int64                      `json:"version"`
	CreatedAt      time.Time                  `json:"created_at"`
	LastAmendedAt  *time.Time                 `json:"last_amended_at,omitempty"`
}

// ElapsedResponse is the elapsed time since the first visit.
type ElapsedResponse struct {
	Days          int    `json:"days"`
	Weeks         int    `json:"weeks"`
	RemainderDays int    `json:"remainder_days"`
	Marker        string `json:"marker"`
}

// AnnotatedEntryResponse is an entry with its elapsed-time annotation.
type AnnotatedEntryResponse struct {
	EntryResponse
	Elapsed ElapsedResponse `json:"elapsed"`
}

// TimelineResponse is a patient's annotated timeline.
type TimelineResponse struct {
	PatientID      string                    `json:"patient_id"`
	FirstVisitDate *string                   `json:"first_visit_date"`
	Entries        []*AnnotatedEntryResponse `json:"entries"`
}

// AuditEventResponse represents one audit event.
type AuditEventResponse struct {
	ID              string      `json:"id"`
	EntryID         string      `json:"entry_id"`
	ActorID         string      `json:"actor_id"`
	Action          string      `json:"action"`
	Timestamp       time.Time   `json:"timestamp"`
	Reason          string      `json:"reason,omitempty"`
	PreviousVersion *int64      `json:"previous_version"`
	NewVersion      int64       `json:"new_version"`
	ChangedFields   []string    `json:"changed_fields"`
	Diff            domain.Diff `json:"diff"`
	Hash            string      `json:"hash"`
}

// HistoryResponse is an entry's audit trail.
type HistoryResponse struct {
	Entry      *EntryResponse        `json:"entry"`
	Events     []*AuditEventResponse `json:"events"`
	ChainValid bool                  `json:"chain_valid"`
	ChainError string                `json:"chain_error,omitempty"`
}

// VersionResponse is an entry as of a past version.
type VersionResponse struct {
	EntryID        string                     `json:"entry_id"`
	PatientID      string                     `json:"patient_id"`
	Date           string                     `json:"date"`
	Version        int64                      `json:"version"`
	Content        string                     `json:"content"`
	TherapyMethods []string                   `json:"therapy_methods"`
	Measurements   map[string]decimal.Decimal `json:"measurements"`
	RecordedAt     time.Time                  `json:"recorded_at"`
	ActorID        string                     `json:"actor_id"`
	Reason         string                     `json:"reason,omitempty"`
}

// TherapyMethodsResponse lists the therapy catalog.
type TherapyMethodsResponse struct {
	Methods []domain.TherapyMethod `json:"methods"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// EntryFromDomain converts a domain entry to a response.
func EntryFromDomain(e *domain.TreatmentEntry) *EntryResponse {
	measurements := e.Measurements
	if measurements == nil {
		measurements = map[string]decimal.Decimal{}
	}
	return &EntryResponse{
		ID:             e.ID,
		PatientID:      e.PatientID,
		Date:           e.Date.Format(domain.DateLayout),
		Content:        e.Content,
		TherapyMethods: domain.NormalizeMethods(e.TherapyMethods),
		Measurements:   measurements,
		Version:        e.Version,
		CreatedAt:      e.CreatedAt,
		LastAmendedAt:  e.LastAmendedAt,
	}
}

// AnnotatedEntryFromUseCase converts an annotated entry to a response.
func AnnotatedEntryFromUseCase(a *usecase.AnnotatedEntry) *AnnotatedEntryResponse {
	return &AnnotatedEntryResponse{
		EntryResponse: *EntryFromDomain(a.Entry),
		Elapsed: ElapsedResponse{
			Days:          a.Annotation.ElapsedDays,
			Weeks:         a.Annotation.ElapsedWeeks,
			RemainderDays: a.Annotation.RemainderDays,
			Marker:        a.Annotation.Marker(),
		},
	}
}

// TimelineFromUseCase converts a timeline to a response.
func TimelineFromUseCase(t *usecase.Timeline) *TimelineResponse {
	resp := &TimelineResponse{
		PatientID: t.PatientID,
		Entries:   make([]*AnnotatedEntryResponse, 0, len(t.Entries)),
	}
	if t.FirstVisitDate != nil {
		s := t.FirstVisitDate.Format(domain.DateLayout)
		resp.FirstVisitDate = &s
	}
	for i := range t.Entries {
		resp.Entries = append(resp.Entries, AnnotatedEntryFromUseCase(&t.Entries[i]))
	}
	return resp
}

// AuditEventFromDomain converts an audit event to a response.
func AuditEventFromDomain(ev *domain.AuditEvent) *AuditEventResponse {
	changed := ev.Diff.ChangedFields()
	if changed == nil {
		changed = []string{}
	}
	return &AuditEventResponse{
		ID:              ev.ID,
		EntryID:         ev.EntryID,
		ActorID:         ev.ActorID,
		Action:          string(ev.Action),
		Timestamp:       ev.Timestamp,
		Reason:          ev.Reason,
		PreviousVersion: ev.PreviousVersion,
		NewVersion:      ev.NewVersion,
		ChangedFields:   changed,
		Diff:            ev.Diff,
		Hash:            ev.Hash,
	}
}

// HistoryFromUseCase converts an entry history to a response.
func HistoryFromUseCase(h *usecase.EntryHistory) *HistoryResponse {
	resp := &HistoryResponse{
		Entry:      EntryFromDomain(h.Entry),
		Events:     make([]*AuditEventResponse, 0, len(h.Events)),
		ChainValid: h.ChainError == nil,
	}
	if h.ChainError != nil {
		resp.ChainError = h.ChainError.Error()
	}
	for _, ev := range h.Events {
		resp.Events = append(resp.Events, AuditEventFromDomain(ev))
	}
	return resp
}

// VersionFromUseCase converts a past version to a response.
func VersionFromUseCase(v *usecase.EntryVersion) *VersionResponse {
	measurements := v.Fields.Measurements
	if measurements == nil {
		measurements = map[string]decimal.Decimal{}
	}
	return &VersionResponse{
		EntryID:        v.EntryID,
		PatientID:      v.PatientID,
		Date:           v.Date.Format(domain.DateLayout),
		Version:        v.Version,
		Content:        v.Fields.Content,
		TherapyMethods: domain.NormalizeMethods(v.Fields.TherapyMethods),
		Measurements:   measurements,
		RecordedAt:     v.RecordedAt,
		ActorID:        v.ActorID,
		Reason:         v.Reason,
	}
}
