package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "murmur.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "daemon started") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if strings.Contains(string(content), "\033[") {
		t.Fatalf("expected no ANSI colors for file output, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "debug",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersJobPrefix(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-prefix.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("stage completed",
		logging.String(logging.FieldComponent, "pipeline"),
		logging.String(logging.FieldJobID, "0b6c3f7e-1111-2222-3333-444455556666"),
		logging.String(logging.FieldStage, "mixing"),
		logging.Int("fragments", 3),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "pipeline [0b6c3f7e/mixing]: stage completed") {
		t.Fatalf("unexpected console prefix: %q", line)
	}
	if !strings.Contains(line, "fragments=3") {
		t.Fatalf("expected trailing attrs, got %q", line)
	}
}

func TestJSONLoggerUsesCompactKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if entry["level"] != "warn" || entry["msg"] != "json message" || entry["k"] != "v" {
		t.Fatalf("unexpected json entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-123")
	ctx = services.WithStage(ctx, "synthesizing")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldJobID] != "job-123" {
		t.Fatalf("job id = %v", entry[logging.FieldJobID])
	}
	if entry[logging.FieldStage] != "synthesizing" {
		t.Fatalf("stage = %v", entry[logging.FieldStage])
	}
	if entry[logging.FieldCorrelationID] != "req-xyz" {
		t.Fatalf("correlation id = %v", entry[logging.FieldCorrelationID])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "workspace kept", "workspace_retained")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected %s in %v", key, entry)
		}
	}
}
