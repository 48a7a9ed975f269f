package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLoggingState() {
	CloseAll()
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	logsDir = ""
	workspace = ""
	configMu.Lock()
	config = loggingConfig{}
	configMu.Unlock()
}

// TestAllCategoriesLog verifies every category produces a log file when
// debug mode is enabled.
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".scriptforge")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"analyzer": true,
				"probeplan": true,
				"generator": true,
				"cache": true,
				"validator": true,
				"refactor": true,
				"sandbox": true,
				"dispatcher": true,
				"composer": true,
				"fingerprint": true,
				"lessons": true,
				"oracle": true
			}
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Fatal("expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryAnalyzer, CategoryProbePlan, CategoryGenerator, CategoryCache,
		CategoryValidator, CategoryRefactor, CategorySandbox, CategoryDispatcher,
		CategoryComposer, CategoryFingerprint, CategoryLessons, CategoryOracle,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("category %s should be enabled", cat)
		}

		logger := Get(cat)
		logger.Info("test info message for %s", cat)
		logger.Debug("test debug message for %s", cat)
		logger.Warn("test warn message for %s", cat)
		logger.Error("test error message for %s", cat)

		date := time.Now().Format("2006-01-02")
		logPath := filepath.Join(tempDir, ".scriptforge", "logs", date+"_"+string(cat)+".log")
		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Errorf("category %s: expected log file at %s: %v", cat, logPath, err)
			continue
		}
		content := string(data)
		if !strings.Contains(content, "test info message") {
			t.Errorf("category %s: missing info message in log", cat)
		}
		if !strings.Contains(content, "[ERROR]") {
			t.Errorf("category %s: missing error level marker", cat)
		}
	}
}

// TestDisabledCategoryIsNoOp verifies a disabled category writes nothing.
func TestDisabledCategoryIsNoOp(t *testing.T) {
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, ".scriptforge")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"analyzer": false
			}
		}
	}`
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	resetLoggingState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}

	if IsCategoryEnabled(CategoryAnalyzer) {
		t.Fatal("expected analyzer category to be disabled")
	}

	logger := Get(CategoryAnalyzer)
	logger.Info("should not be written")

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(tempDir, ".scriptforge", "logs", date+"_analyzer.log")
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Fatalf("expected no log file for disabled category, got err=%v", err)
	}
}

// TestProductionModeIsSilent verifies no logs directory is created when
// debug_mode is absent (production default).
func TestProductionModeIsSilent(t *testing.T) {
	tempDir := t.TempDir()

	resetLoggingState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Fatal("expected debug mode disabled by default")
	}

	logsPath := filepath.Join(tempDir, ".scriptforge", "logs")
	if _, err := os.Stat(logsPath); !os.IsNotExist(err) {
		t.Fatalf("expected no logs directory in production mode, err=%v", err)
	}

	// Logging calls must be safe no-ops.
	Analyzer("noop")
	Get(CategoryCache).Error("noop")
}

// TestTimerStopWithThreshold exercises the duration-based warn/debug split.
func TestTimerStopWithThreshold(t *testing.T) {
	tempDir := t.TempDir()
	resetLoggingState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}

	timer := StartTimer(CategoryDispatcher, "unit-test-op")
	elapsed := timer.StopWithThreshold(time.Hour)
	if elapsed < 0 {
		t.Fatalf("expected non-negative elapsed duration, got %v", elapsed)
	}
}
