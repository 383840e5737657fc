package logging_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autocheck/internal/logging"
	"autocheck/internal/services"
)

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "scheduler").Info("next run armed", logging.String("next", "08:00"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO scheduler: next run armed next=08:00") {
		t.Fatalf("unexpected console line %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", line)
	}
}

func TestJSONLoggerUsesLowercaseLevelAndTS(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("session refresh failed")

	content, _ := os.ReadFile(logPath)
	if !strings.Contains(string(content), `"level":"warn"`) || !strings.Contains(string(content), `"ts":`) {
		t.Fatalf("unexpected json line %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLevelVarCanBeRaisedAfterConstruction(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	levelVar := new(slog.LevelVar)
	logger, err := logging.New(logging.Options{Level: "info", LevelVar: levelVar, OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	levelVar.Set(slog.LevelDebug)
	logger.Debug("shown")

	content, _ := os.ReadFile(logPath)
	if strings.Contains(string(content), "hidden") || !strings.Contains(string(content), "shown") {
		t.Fatalf("unexpected output %q", content)
	}
}

func TestWithContextAddsRunFields(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, err := logging.New(logging.Options{OutputPaths: []string{filepath.Join(t.TempDir(), "ctx.log")}, Stream: hub})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRunID(context.Background(), "run-42")
	ctx = services.WithTrigger(ctx, "scheduled")
	logging.WithContext(ctx, logger).Info("run started")

	events, _ := hub.Tail(1)
	if len(events) != 1 || events[0].RunID != "run-42" || events[0].Trigger != "scheduled" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestCleanupOldLogsKeepsExcludedAndRecent(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "autocheck-old.log")
	current := filepath.Join(dir, "autocheck-current.log")
	recent := filepath.Join(dir, "autocheck-recent.log")
	for _, path := range []string{old, current, recent} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, current} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{Dir: dir, Pattern: "autocheck-*.log", Exclude: []string{current}})
	if removed != 1 {
		t.Fatalf("expected 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected old log removed")
	}
	for _, path := range []string{current, recent} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}
