package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNew_DefaultLevel(t *testing.T) {
	logger := New("", "text")
	if logger == nil {
		t.Fatal("Expected non-nil logger")
	}
}

func TestNew_DebugLevel(t *testing.T) {
	logger := New("debug", "text")
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Expected debug level to be enabled")
	}
}

func TestNew_ErrorLevel(t *testing.T) {
	logger := New("error", "text")
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Expected info level to be disabled at error level")
	}
}

func TestNew_LevelIsCaseInsensitive(t *testing.T) {
	logger := New("ERROR", "text")
	if logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("Expected warn level to be disabled at ERROR level")
	}
}

func TestNew_JSONFormat(t *testing.T) {
	logger := New("info", "json")
	if logger == nil {
		t.Fatal("Expected non-nil logger for JSON format")
	}
}

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if id := RequestID(ctx); id != "" {
		t.Errorf("Expected empty request ID, got %q", id)
	}

	ctx = WithRequestID(ctx, "req_123")
	if id := RequestID(ctx); id != "req_123" {
		t.Errorf("Expected req_123, got %q", id)
	}
}

func TestL_IncludesRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_abc")
	if logger := L(ctx); logger == nil {
		t.Fatal("Expected non-nil logger")
	}
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	if logger := FromContext(context.Background()); logger == nil {
		t.Fatal("Expected default logger")
	}
}
