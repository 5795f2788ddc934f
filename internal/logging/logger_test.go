package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConsoleLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{
		Writer: &buf,
		Level:  WARN,
	})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("debug message should be filtered at WARN level")
	}
	if strings.Contains(output, "info message") {
		t.Error("info message should be filtered at WARN level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("warn message missing from output")
	}
	if !strings.Contains(output, "error message") {
		t.Error("error message missing from output")
	}
}

func TestConsoleLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: DEBUG})

	logger.Info("sync completed", F("appId", "app-a"), F("dirty", 3))

	output := buf.String()
	if !strings.Contains(output, "appId=app-a") {
		t.Errorf("expected field appId in output, got %q", output)
	}
	if !strings.Contains(output, "dirty=3") {
		t.Errorf("expected field dirty in output, got %q", output)
	}
}

func TestConsoleLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{
		Writer:          &buf,
		Level:           DEBUG,
		RedactSensitive: true,
	})

	logger.Info("request failed: Bearer abc123token")

	output := buf.String()
	if strings.Contains(output, "abc123token") {
		t.Error("bearer token was not redacted")
	}
	if !strings.Contains(output, "[REDACTED]") {
		t.Error("expected redaction marker in output")
	}
}

func TestConsoleLogger_TraceID(t *testing.T) {
	var buf bytes.Buffer
	base := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: DEBUG})

	ctx := ContextWithTraceID(context.Background(), "0123456789abcdef")
	logger := base.WithContext(ctx)
	logger.Info("traced")

	if !strings.Contains(buf.String(), "[01234567]") {
		t.Errorf("expected shortened trace ID in output, got %q", buf.String())
	}
}

func TestFileLogger_WritesJSONEntries(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "gsyncd.log")

	logger, err := NewFileLogger(FileLoggerConfig{FilePath: logPath, Level: DEBUG})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	logger.Info("tracked file synced", F("path", "/A/doc.txt"))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("unmarshaling log entry: %v", err)
	}
	if entry.Level != "INFO" {
		t.Errorf("Level = %q, want INFO", entry.Level)
	}
	if entry.Message != "tracked file synced" {
		t.Errorf("Message = %q", entry.Message)
	}
	if entry.Fields["path"] != "/A/doc.txt" {
		t.Errorf("Fields[path] = %v", entry.Fields["path"])
	}
}

func TestNewLogger_Factory(t *testing.T) {
	tests := []struct {
		name   string
		config LogConfig
		want   string
	}{
		{"neither", LogConfig{}, "*logging.NoOpLogger"},
		{"console only", LogConfig{EnableConsole: true}, "*logging.ConsoleLogger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			defer func() {
				_ = logger.Close()
			}()
			switch tt.want {
			case "*logging.NoOpLogger":
				if _, ok := logger.(*NoOpLogger); !ok {
					t.Errorf("got %T, want NoOpLogger", logger)
				}
			case "*logging.ConsoleLogger":
				if _, ok := logger.(*ConsoleLogger); !ok {
					t.Errorf("got %T, want ConsoleLogger", logger)
				}
			}
		})
	}
}

func TestNewLogger_ConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(LogConfig{
		EnableConsole: true,
		OutputFile:    filepath.Join(dir, "out.log"),
	})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer func() {
		_ = logger.Close()
	}()
	if _, ok := logger.(*MultiLogger); !ok {
		t.Errorf("got %T, want MultiLogger", logger)
	}
}
