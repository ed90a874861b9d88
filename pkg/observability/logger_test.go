package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/medora/medora/pkg/contextkeys"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")

		entry := decodeEntry(t, &buf)
		if entry["level"] != "INFO" {
			t.Errorf("Expected level INFO, got %v", entry["level"])
		}
		if entry["msg"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", entry["msg"])
		}
	})

	t.Run("error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Error("error message")
		if buf.Len() == 0 {
			t.Error("Error message should be logged at Info level")
		}
	})
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithFields(map[string]interface{}{
		"role_id":    "r-1",
		"permission": "role.read",
	}).WithField("status", 403).Info("authorization denied")

	entry := decodeEntry(t, &buf)
	if entry["role_id"] != "r-1" {
		t.Errorf("Expected role_id 'r-1', got %v", entry["role_id"])
	}
	if entry["permission"] != "role.read" {
		t.Errorf("Expected permission 'role.read', got %v", entry["permission"])
	}
	if entry["status"] != float64(403) {
		t.Errorf("Expected status 403, got %v", entry["status"])
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("connection refused")).Error("query failed")

	entry := decodeEntry(t, &buf)
	if entry["error"] != "connection refused" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}

	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	tests := []struct {
		name string
		log  func()
		want string
	}{
		{"Debugf", func() { logger.Debugf("test %s %d", "string", 42) }, "test string 42"},
		{"Infof", func() { logger.Infof("test %d", 123) }, "test 123"},
		{"Warnf", func() { logger.Warnf("warning %s", "test") }, "warning test"},
		{"Errorf", func() { logger.Errorf("error %v", "test") }, "error test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			entry := decodeEntry(t, &buf)
			if entry["msg"] != tt.want {
				t.Errorf("Expected %q, got %v", tt.want, entry["msg"])
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = contextkeys.WithRequestID(ctx, "req-123")

	FromContext(ctx).Info("test message")

	entry := decodeEntry(t, &buf)
	if entry["request_id"] != "req-123" {
		t.Errorf("Expected request_id 'req-123', got %v", entry["request_id"])
	}

	if FromContext(context.Background()) == nil {
		t.Error("Expected a default logger")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"ERROR", ErrorLevel},
		{"info", InfoLevel},
		{"bogus", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
