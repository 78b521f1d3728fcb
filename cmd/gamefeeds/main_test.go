package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// setupEnv points the CLI at a fake RAWG and temporary directories
func setupEnv(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	outputDir := t.TempDir()
	t.Setenv("SOURCE", "rawg")
	t.Setenv("RAWG_API_KEY", "test-key")
	t.Setenv("RAWG_BASE_URL", server.URL+"/api")
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("OUTPUT_DIR", outputDir)
	t.Setenv("PAGE_DELAY_MS", "0")
	t.Setenv("LOG_LEVEL", "error")
	return outputDir
}

func execute(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestDailyRunSurvivesUpstreamFailure(t *testing.T) {
	outputDir := setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	if err := execute(); err != nil {
		t.Fatalf("An upstream failure should not fail the run, got %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outputDir, "daily_games.json"))
	if err != nil {
		t.Fatalf("Daily document not written: %v", err)
	}
	var doc map[string][]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if doc["NewReleases"] == nil || doc["Upcoming"] == nil || len(doc["NewReleases"])+len(doc["Upcoming"]) != 0 {
		t.Errorf("Expected two empty feeds, got %s", data)
	}
}

func TestMonthlyRunSurvivesUpstreamFailure(t *testing.T) {
	outputDir := setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	if err := execute("--monthly"); err != nil {
		t.Fatalf("A decode failure should not fail the run, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(outputDir, "top_games.json")); err != nil {
		t.Errorf("Monthly document not written: %v", err)
	}
}

func TestRunFailsOnWriteError(t *testing.T) {
	outputDir := setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count": 0, "next": null, "results": []}`))
	})

	// A directory in the way makes the final rename fail
	if err := os.Mkdir(filepath.Join(outputDir, "daily_games.json"), 0755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	if err := execute(); err == nil {
		t.Error("Expected the write error to fail the run")
	}
}

func TestRunFailsWithoutCredentials(t *testing.T) {
	setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request should be made without credentials")
	})
	t.Setenv("RAWG_API_KEY", "")

	if err := execute(); err == nil {
		t.Error("Expected a configuration error")
	}
}
