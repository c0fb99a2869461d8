package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerFormatsOutput(t *testing.T) {
	tests := []struct {
		name       string
		format     string
		level      string
		assertions func(t *testing.T, output string)
	}{
		{
			name:   "console format is human readable",
			format: "console",
			level:  "info",
			assertions: func(t *testing.T, output string) {
				if strings.HasPrefix(strings.TrimSpace(output), "{") || !strings.Contains(output, "hello") {
					t.Fatalf("expected console output, got %q", output)
				}
			},
		},
		{
			name:   "json format starts with brace",
			format: "json",
			level:  "debug",
			assertions: func(t *testing.T, output string) {
				if !strings.HasPrefix(strings.TrimSpace(output), "{") {
					t.Fatalf("expected json output to start with '{', got %q", output)
				}
				if !strings.Contains(output, `"message":"hello"`) {
					t.Fatalf("expected message field, got %q", output)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(Config{Format: tt.format, Level: tt.level}, &buf)
			log.Info().Msg("hello")

			if buf.Len() == 0 {
				t.Fatalf("expected log output, got empty string")
			}

			tt.assertions(t, buf.String())
		})
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Format: "json", Level: "warn"}, &buf)

	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}
}

func TestNewLoggerAddsService(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Format: "json", Service: "clinicalledger"}, &buf)
	log.Info().Msg("entry created")

	out := buf.String()
	if !strings.Contains(out, `"service":"clinicalledger"`) {
		t.Fatalf("expected service field, got %q", out)
	}
	if !strings.Contains(out, `"caller":`) {
		t.Fatalf("expected caller in json output, got %q", out)
	}
}

func TestFromContext(t *testing.T) {
	var fallbackBuf, reqBuf bytes.Buffer
	fallback := zerolog.New(&fallbackBuf)
	reqLogger := zerolog.New(&reqBuf).With().Str("request_id", "r-1").Logger()

	l := FromContext(context.Background(), fallback)
	l.Info().Msg("a")
	if fallbackBuf.Len() == 0 {
		t.Fatalf("expected fallback logger without context logger")
	}

	ctx := reqLogger.WithContext(context.Background())
	l = FromContext(ctx, fallback)
	l.Info().Msg("b")
	if !strings.Contains(reqBuf.String(), "r-1") {
		t.Fatalf("expected request logger, got %q", reqBuf.String())
	}
}
