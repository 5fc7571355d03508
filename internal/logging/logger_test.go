package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetForTest() {
	CloseAll()
	logsDir = ""
	optsMu.Lock()
	opts = Options{}
	logLevel = LevelInfo
	optsMu.Unlock()
}

func TestInitializeRequiresWorkspace(t *testing.T) {
	defer resetForTest()
	if err := Initialize("", Options{DebugMode: true}); err == nil {
		t.Fatal("expected error for empty workspace")
	}
}

func TestProductionModeWritesNothing(t *testing.T) {
	defer resetForTest()
	dir := t.TempDir()
	if err := Initialize(dir, Options{DebugMode: false}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Nexus("this should vanish")
	if _, err := os.Stat(filepath.Join(dir, ".aeon", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory created in production mode")
	}
}

func TestDebugModeWritesCategoryFile(t *testing.T) {
	defer resetForTest()
	dir := t.TempDir()
	if err := Initialize(dir, Options{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Failover("circuit opened for %s", "stylist")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, ".aeon", "logs"))
	if err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
	var found bool
	for _, e := range entries {
		if strings.Contains(e.Name(), "failover") {
			found = true
			data, _ := os.ReadFile(filepath.Join(dir, ".aeon", "logs", e.Name()))
			if !strings.Contains(string(data), "circuit opened for stylist") {
				t.Error("log line not written")
			}
		}
	}
	if !found {
		t.Error("no failover log file created")
	}
}

func TestLevelFiltering(t *testing.T) {
	defer resetForTest()
	dir := t.TempDir()
	if err := Initialize(dir, Options{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l := Get(CategoryNexus)
	l.Info("info line suppressed")
	l.Warn("warn line kept")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(dir, ".aeon", "logs"))
	for _, e := range entries {
		if strings.Contains(e.Name(), "nexus") {
			data, _ := os.ReadFile(filepath.Join(dir, ".aeon", "logs", e.Name()))
			if strings.Contains(string(data), "info line suppressed") {
				t.Error("info line written despite warn level")
			}
			if !strings.Contains(string(data), "warn line kept") {
				t.Error("warn line missing")
			}
		}
	}
}

func TestCategoryFilter(t *testing.T) {
	defer resetForTest()
	dir := t.TempDir()
	err := Initialize(dir, Options{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{"telemetry": false},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if IsCategoryEnabled(CategoryTelemetry) {
		t.Error("disabled category reported enabled")
	}
	if !IsCategoryEnabled(CategoryFailover) {
		t.Error("unlisted category should default to enabled")
	}
}

func TestTimerDoesNotPanicWhenDisabled(t *testing.T) {
	defer resetForTest()
	timer := StartTimer(CategoryNexus, "noop")
	if d := timer.Stop(); d < 0 {
		t.Error("negative duration")
	}
}
