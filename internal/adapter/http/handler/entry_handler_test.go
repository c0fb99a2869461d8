package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/clinicalledger/internal/adapter/http/dto"
	"github.com/iho/clinicalledger/internal/adapter/http/middleware"
	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/usecase"
)

type entryServiceStub struct {
	createFn   func(ctx context.Context, input usecase.CreateEntryInput) (*domain.TreatmentEntry, error)
	amendFn    func(ctx context.Context, input usecase.AmendEntryInput) (*domain.TreatmentEntry, error)
	timelineFn func(ctx context.Context, patientID string) (*usecase.Timeline, error)
	getFn      func(ctx context.Context, patientID, entryID string) (*usecase.AnnotatedEntry, error)
	methods    []domain.TherapyMethod
}

func (s *entryServiceStub) CreateEntry(ctx context.Context, input usecase.CreateEntryInput) (*domain.TreatmentEntry, error) {
	return s.createFn(ctx, input)
}

func (s *entryServiceStub) AmendEntry(ctx context.Context, input usecase.AmendEntryInput) (*domain.TreatmentEntry, error) {
	return s.amendFn(ctx, input)
}

func (s *entryServiceStub) Timeline(ctx context.Context, patientID string) (*usecase.Timeline, error) {
	return s.timelineFn(ctx, patientID)
}

func (s *entryServiceStub) GetEntry(ctx context.Context, patientID, entryID string) (*usecase.AnnotatedEntry, error) {
	return s.getFn(ctx, patientID, entryID)
}

func (s *entryServiceStub) TherapyMethods() []domain.TherapyMethod {
	return s.methods
}

func newEntryHandler(stub *entryServiceStub) *EntryHandler {
	return NewEntryHandler(stub, stub)
}

// withRoute adds chi URL params and an actor to req.
func withRoute(req *http.Request, actor string, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if actor != "" {
		ctx = context.WithValue(ctx, middleware.ActorContextKey, &middleware.Actor{ID: actor})
	}
	return req.WithContext(ctx)
}

func sampleEntry() *domain.TreatmentEntry {
	return &domain.TreatmentEntry{
		ID:             "e1",
		PatientID:      "patient-1",
		Date:           time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
		Content:        "歩行訓練",
		TherapyMethods: []string{"gait"},
		Measurements:   map[string]decimal.Decimal{"pain": decimal.NewFromInt(3)},
		Version:        1,
		CreatedAt:      time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC),
	}
}

func TestEntryHandler_Create_Success(t *testing.T) {
	var captured usecase.CreateEntryInput
	h := newEntryHandler(&entryServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateEntryInput) (*domain.TreatmentEntry, error) {
			captured = input
			return sampleEntry(), nil
		},
	})

	body := `{"date":"2024-01-22","content":"歩行訓練","therapy_methods":["gait"],"measurements":{"pain":"3"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/patient-1/entries", bytes.NewBufferString(body))
	req = withRoute(req, "dr-sato", map[string]string{"patientID": "patient-1"})
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.PatientID != "patient-1" || captured.ActorID != "dr-sato" || captured.Content != "歩行訓練" {
		t.Fatalf("expected input to match request, got %+v", captured)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/patients/patient-1/entries/e1" {
		t.Fatalf("unexpected location %q", loc)
	}

	var resp dto.EntryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "e1" || resp.Date != "2024-01-22" || resp.Version != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestEntryHandler_Create_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed json", `{`, nil, http.StatusBadRequest},
		{"missing date", `{"content":"x"}`, nil, http.StatusBadRequest},
		{"future date", `{"date":"2024-01-22","content":"x"}`, domain.ErrFutureDate, http.StatusBadRequest},
		{"duplicate", `{"date":"2024-01-22","content":"x"}`, domain.ErrDuplicateEntry, http.StatusConflict},
		{"storage", `{"date":"2024-01-22","content":"x"}`, domain.StorageError("put", context.DeadlineExceeded), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newEntryHandler(&entryServiceStub{
				createFn: func(ctx context.Context, input usecase.CreateEntryInput) (*domain.TreatmentEntry, error) {
					if tt.err == nil {
						t.Fatalf("use case should not be called")
					}
					return nil, tt.err
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			req = withRoute(req, "dr-sato", map[string]string{"patientID": "patient-1"})
			rec := httptest.NewRecorder()

			h.Create(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestEntryHandler_Amend(t *testing.T) {
	var captured usecase.AmendEntryInput
	h := newEntryHandler(&entryServiceStub{
		amendFn: func(ctx context.Context, input usecase.AmendEntryInput) (*domain.TreatmentEntry, error) {
			captured = input
			e := sampleEntry()
			e.Content = *input.Update.Content
			e.Version = 2
			return e, nil
		},
	})

	body := `{"expected_version":1,"reason":"記載漏れのため追記","content":"歩行訓練 20m"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req = withRoute(req, "dr-sato", map[string]string{"patientID": "patient-1", "entryID": "e1"})
	rec := httptest.NewRecorder()

	h.Amend(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.EntryID != "e1" || captured.ExpectedVersion != 1 || captured.Reason != "記載漏れのため追記" {
		t.Fatalf("unexpected input %+v", captured)
	}

	var resp dto.EntryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Version != 2 || resp.Content != "歩行訓練 20m" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestEntryHandler_Amend_Conflict(t *testing.T) {
	h := newEntryHandler(&entryServiceStub{
		amendFn: func(ctx context.Context, input usecase.AmendEntryInput) (*domain.TreatmentEntry, error) {
			return nil, domain.ErrVersionConflict
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"expected_version":1,"reason":"記載漏れのため追記","content":"x"}`))
	req = withRoute(req, "dr-sato", map[string]string{"patientID": "patient-1", "entryID": "e1"})
	rec := httptest.NewRecorder()

	h.Amend(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestEntryHandler_Timeline(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := newEntryHandler(&entryServiceStub{
		timelineFn: func(ctx context.Context, patientID string) (*usecase.Timeline, error) {
			if patientID != "patient-1" {
				t.Fatalf("unexpected patient %s", patientID)
			}
			return &usecase.Timeline{
				PatientID:      patientID,
				FirstVisitDate: &first,
				Entries: []usecase.AnnotatedEntry{{
					Entry:      sampleEntry(),
					Annotation: domain.Annotation{ElapsedDays: 21, ElapsedWeeks: 3},
				}},
			}, nil
		},
	})

	req := withRoute(httptest.NewRequest(http.MethodGet, "/", nil), "", map[string]string{"patientID": "patient-1"})
	rec := httptest.NewRecorder()

	h.Timeline(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp dto.TimelineResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Elapsed.Marker != "3w0d" {
		t.Fatalf("unexpected timeline %+v", resp)
	}
}

func TestEntryHandler_Get_NotFound(t *testing.T) {
	h := newEntryHandler(&entryServiceStub{
		getFn: func(ctx context.Context, patientID, entryID string) (*usecase.AnnotatedEntry, error) {
			return nil, domain.ErrEntryNotFound
		},
	})

	req := withRoute(httptest.NewRequest(http.MethodGet, "/", nil), "", map[string]string{"patientID": "patient-1", "entryID": "missing"})
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestEntryHandler_TherapyMethods(t *testing.T) {
	h := newEntryHandler(&entryServiceStub{
		methods: []domain.TherapyMethod{{Code: "gait", Label: "Gait training"}},
	})

	rec := httptest.NewRecorder()
	h.TherapyMethods(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp dto.TherapyMethodsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Methods) != 1 || resp.Methods[0].Code != "gait" {
		t.Fatalf("unexpected methods %+v", resp)
	}
}
