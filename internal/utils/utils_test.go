package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

func TestWriteJSONReplacesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daily_games.json")

	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	doc := map[string][]string{"NewReleases": {}, "Upcoming": {"a"}}
	if err := WriteJSON(path, doc); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	var got map[string][]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Output is not valid JSON: %v\n%s", err, data)
	}
	if len(got["Upcoming"]) != 1 || got["NewReleases"] == nil {
		t.Errorf("Unexpected document: %v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Temp files left behind: %v", entries)
	}
}

func TestWriteJSONMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "top_games.json")
	if err := WriteJSON(path, map[string]int{}); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerTo(&buf, "warn")
	if logger.GetLevel() != logrus.WarnLevel {
		t.Errorf("Expected warn level, got %s", logger.GetLevel())
	}

	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("Unexpected output: %s", buf.String())
	}

	if NewLoggerTo(&buf, "nonsense").GetLevel() != logrus.InfoLevel {
		t.Error("Unknown level should fall back to info")
	}
}

func TestTracerProviderLogsSpans(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "debug")

	tp := NewTracerProvider(logger)
	_, span := tp.Tracer("test").Start(context.Background(), "feed.build")
	span.SetAttributes(attribute.String("feed", "HallOfFame"))
	span.End()

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "span=feed.build") || !strings.Contains(out, "span.feed=HallOfFame") {
		t.Errorf("Span not logged: %s", out)
	}
}
