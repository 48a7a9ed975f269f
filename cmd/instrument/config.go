package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors a small on-disk YAML file supplying flag defaults: a
// yaml-tagged struct, loaded once, overridden by explicit flags. It carries
// no product state - only the run defaults the instrumentation core leaves
// to its caller.
type fileConfig struct {
	MaxWorkers          int    `yaml:"max_workers"`
	SandboxTimeoutMs    int    `yaml:"sandbox_timeout_ms"`
	OracleTimeoutMs     int    `yaml:"oracle_timeout_ms"`
	MaxRefactorAttempts int    `yaml:"max_refactor_attempts"`
	CacheRoot           string `yaml:"cache_root"`
	LessonsRoot         string `yaml:"lessons_root"`
	GeminiModel         string `yaml:"gemini_model"`
}

// defaultConfigPath is checked when --config is not given; its absence is
// not an error, unlike an explicitly named but unreadable file.
const defaultConfigPath = ".scriptforge.yaml"

// loadFileConfig reads path (or defaultConfigPath if path is empty) and
// returns a zero-valued fileConfig, no error, when the file does not exist
// and none was explicitly requested.
func loadFileConfig(path string) (fileConfig, error) {
	explicit := path != ""
	if path == "" {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return fileConfig{}, nil
		}
		return fileConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ensureDebugLoggingConfig writes <ws>/.scriptforge/config.json with
// debug_mode=true and level=debug when --verbose is given, unless the file
// already exists - an explicit on-disk config always wins over the flag.
func ensureDebugLoggingConfig(ws string) error {
	dir := filepath.Join(ws, ".scriptforge")
	path := filepath.Join(dir, "config.json")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	cfg := struct {
		Logging struct {
			DebugMode bool   `json:"debug_mode"`
			Level     string `json:"level"`
		} `json:"logging"`
	}{}
	cfg.Logging.DebugMode = true
	cfg.Logging.Level = "debug"

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
