package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestStartSpan(t *testing.T) {
	recorder := newRecorder(t)

	ctx, endSpan := StartSpan(context.Background(), "ledger.create_entry", attribute.String("patient.id", "p1"))
	SetAttributes(ctx, attribute.Int64("entry.version", 1))
	AddEvent(ctx, "audit.appended")
	endSpan(nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name() != "ledger.create_entry" {
		t.Errorf("unexpected span name %q", span.Name())
	}
	if span.Status().Code == codes.Error {
		t.Errorf("expected non-error status")
	}
	if len(span.Attributes()) != 2 {
		t.Errorf("expected 2 attributes, got %v", span.Attributes())
	}
	if len(span.Events()) != 1 || span.Events()[0].Name != "audit.appended" {
		t.Errorf("expected audit.appended event, got %v", span.Events())
	}
}

func TestStartSpan_WithError(t *testing.T) {
	recorder := newRecorder(t)

	_, endSpan := StartSpan(context.Background(), "ledger.amend_entry")
	endSpan(errors.New("version conflict"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error || spans[0].Status().Description != "version conflict" {
		t.Errorf("expected error status, got %+v", spans[0].Status())
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(Config{Enabled: false}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.IsEnabled() {
		t.Errorf("expected disabled provider")
	}
	if p.Tracer("x") == nil {
		t.Errorf("expected a tracer even when disabled")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing service name", Config{Enabled: true, SamplingRate: 1}},
		{"sampling rate too high", Config{Enabled: true, ServiceName: "svc", SamplingRate: 1.5}},
		{"negative sampling rate", Config{Enabled: true, ServiceName: "svc", SamplingRate: -0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(tt.cfg, zerolog.Nop()); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}
