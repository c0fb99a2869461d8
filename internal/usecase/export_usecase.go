package usecase

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iho/clinicalledger/internal/domain"
	"github.com/iho/clinicalledger/internal/infrastructure/logger"
	"github.com/iho/clinicalledger/internal/infrastructure/metrics"
	"github.com/iho/clinicalledger/internal/infrastructure/tracing"
)

// ExportUseCase renders a patient's ledger into an external format.
type ExportUseCase struct {
	ledger    *LedgerUseCase
	auditRepo AuditRepository
	catalog   *domain.TherapyCatalog
	encoders  map[domain.ExportFormat]Encoder
	archiver  ExportArchiver
	idGen     IDGenerator
	clock     Clock
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewExportUseCase creates a new ExportUseCase. archiver may be nil, in which
// case archive requests are rejected.
func NewExportUseCase(
	ledger *LedgerUseCase,
	auditRepo AuditRepository,
	catalog *domain.TherapyCatalog,
	encoders []Encoder,
	archiver ExportArchiver,
	idGen IDGenerator,
	clock Clock,
	m *metrics.Metrics,
	log zerolog.Logger,
) *ExportUseCase {
	byFormat := make(map[domain.ExportFormat]Encoder, len(encoders))
	for _, enc := range encoders {
		byFormat[enc.Format()] = enc
	}
	if clock == nil {
		clock = SystemClock{}
	}

	return &ExportUseCase{
		ledger:    ledger,
		auditRepo: auditRepo,
		catalog:   catalog,
		encoders:  byFormat,
		archiver:  archiver,
		idGen:     idGen,
		clock:     clock,
		metrics:   m,
		log:       log,
	}
}

// ExportInput represents an export request.
type ExportInput struct {
	PatientID    string
	Format       string
	IncludeAudit bool
	// Archive also stores the rendered payload in object storage.
	Archive bool
}

// ExportResult is a rendered export.
type ExportResult struct {
	Format      domain.ExportFormat
	ContentType string
	Filename    string
	Payload     []byte
	// Location is set when the payload was archived.
	Location string
}

// Formats lists the registered export formats.
func (uc *ExportUseCase) Formats() []domain.ExportFormat {
	return slices.Sorted(maps.Keys(uc.encoders))
}

// Export builds the ledger document once and hands it to the encoder of the
// requested format. An empty ledger yields an empty, valid document.
func (uc *ExportUseCase) Export(ctx context.Context, input ExportInput) (result *ExportResult, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "ledger.export",
		attribute.String("patient.id", input.PatientID),
		attribute.String("export.format", input.Format))
	start := time.Now()
	defer func() { endSpan(err) }()

	format, err := domain.ParseExportFormat(input.Format)
	if err != nil {
		return nil, err
	}
	encoder, ok := uc.encoders[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not enabled", domain.ErrUnknownFormat, format)
	}
	if input.Archive && uc.archiver == nil {
		return nil, domain.ErrArchiveDisabled
	}
	defer func() { uc.observe(format, start, result, err) }()

	doc, err := uc.BuildDocument(ctx, input.PatientID, input.IncludeAudit)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := encoder.Encode(&buf, doc); err != nil {
		return nil, fmt.Errorf("encode %s export: %w", format, err)
	}

	result = &ExportResult{
		Format:      format,
		ContentType: encoder.ContentType(),
		Filename:    exportFilename(doc, encoder.FileExtension()),
		Payload:     buf.Bytes(),
	}

	if input.Archive {
		key := path.Join(ExportArchivePrefix, input.PatientID, uc.idGen.Generate()+"-"+result.Filename)
		location, err := uc.archiver.Archive(ctx, key, result.ContentType, result.Payload)
		if err != nil {
			return nil, domain.StorageError("archive export", err)
		}
		result.Location = location
	}

	l := logger.FromContext(ctx, uc.log)
	l.Info().
		Str("patient_id", input.PatientID).
		Str("format", string(format)).
		Int("records", len(doc.Records)).
		Int("bytes", len(result.Payload)).
		Bool("archived", input.Archive).
		Msg("ledger exported")

	return result, nil
}

// BuildDocument composes the format-independent document of a patient's
// ledger: annotated entries in timeline order and, on request, their audit
// trails.
func (uc *ExportUseCase) BuildDocument(ctx context.Context, patientID string, includeAudit bool) (*domain.LedgerDocument, error) {
	timeline, err := uc.ledger.Timeline(ctx, patientID)
	if err != nil {
		return nil, err
	}

	doc := &domain.LedgerDocument{
		PatientID:      patientID,
		GeneratedAt:    domain.Timestamp(uc.clock.Now()),
		FirstVisitDate: timeline.FirstVisitDate,
		Records:        make([]domain.ExportRecord, 0, len(timeline.Entries)),
		IncludesAudit:  includeAudit,
	}

	for _, item := range timeline.Entries {
		e := item.Entry
		record := domain.ExportRecord{
			EntryID:        e.ID,
			Date:           e.Date,
			Annotation:     item.Annotation,
			Content:        e.Content,
			TherapyMethods: uc.methods(e.TherapyMethods),
			Measurements:   measurements(e),
			Version:        e.Version,
			LastAmendedAt:  e.LastAmendedAt,
		}

		if includeAudit {
			events, err := uc.auditRepo.History(ctx, e.ID)
			if err != nil {
				return nil, domain.StorageError("read audit history", err)
			}
			record.Audit = events
		}

		doc.Records = append(doc.Records, record)
	}

	return doc, nil
}

func (uc *ExportUseCase) methods(codes []string) []domain.TherapyMethod {
	out := make([]domain.TherapyMethod, 0, len(codes))
	for _, code := range codes {
		out = append(out, domain.TherapyMethod{Code: code, Label: uc.catalog.Label(code)})
	}
	return out
}

func measurements(e *domain.TreatmentEntry) []domain.Measurement {
	out := make([]domain.Measurement, 0, len(e.Measurements))
	for _, name := range slices.Sorted(maps.Keys(e.Measurements)) {
		out = append(out, domain.Measurement{Name: name, Value: e.Measurements[name]})
	}
	return out
}

func exportFilename(doc *domain.LedgerDocument, ext string) string {
	patient := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, doc.PatientID)
	return fmt.Sprintf("ledger-%s-%s.%s", patient, doc.GeneratedAt.Format("20060102T150405Z"), ext)
}

func (uc *ExportUseCase) observe(format domain.ExportFormat, start time.Time, result *ExportResult, err error) {
	if uc.metrics == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = string(domain.KindOf(err))
	}
	uc.metrics.Exports.WithLabelValues(string(format), status).Inc()
	uc.metrics.ExportDuration.WithLabelValues(string(format)).Observe(time.Since(start).Seconds())

	if result != nil {
		uc.metrics.ExportBytes.WithLabelValues(string(format)).Observe(float64(len(result.Payload)))
		if result.Location != "" {
			uc.metrics.ExportArchived.Inc()
		}
	}
}
