package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/facron/facron/internal/config"
)

// writeTemp writes content to a temp file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "settings-*.yaml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

const validYAML = `
conf_path: /srv/facron/facron.conf
log_level: debug
backend: fsnotify
status_addr: "127.0.0.1:9100"
history_path: /var/lib/facron/history.db
history_limit: 500
pid_file: /run/facron.pid
`

func TestLoadConfig_Valid(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ConfPath != "/srv/facron/facron.conf" {
		t.Errorf("ConfPath = %q", cfg.ConfPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Backend != "fsnotify" {
		t.Errorf("Backend = %q, want %q", cfg.Backend, "fsnotify")
	}
	if cfg.StatusAddr != "127.0.0.1:9100" {
		t.Errorf("StatusAddr = %q", cfg.StatusAddr)
	}
	if cfg.HistoryPath != "/var/lib/facron/history.db" {
		t.Errorf("HistoryPath = %q", cfg.HistoryPath)
	}
	if cfg.HistoryLimit != 500 {
		t.Errorf("HistoryLimit = %d, want 500", cfg.HistoryLimit)
	}
	if cfg.PIDFile != "/run/facron.pid" {
		t.Errorf("PIDFile = %q", cfg.PIDFile)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeTemp(t, "status_addr: \"\"\n")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ConfPath != config.DefaultConfPath {
		t.Errorf("default ConfPath = %q, want %q", cfg.ConfPath, config.DefaultConfPath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Backend != "fanotify" {
		t.Errorf("default Backend = %q, want %q", cfg.Backend, "fanotify")
	}
	if cfg.HistoryPath != ":memory:" {
		t.Errorf("default HistoryPath = %q, want %q", cfg.HistoryPath, ":memory:")
	}
	if cfg.HistoryLimit != 100 {
		t.Errorf("default HistoryLimit = %d, want 100", cfg.HistoryLimit)
	}
	if cfg.StatusAddr != "" || cfg.PIDFile != "" {
		t.Errorf("optional fields set by default: %+v", cfg)
	}
}

func TestDefault_MatchesEmptyFile(t *testing.T) {
	cfg, err := config.LoadConfig(writeTemp(t, "{}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *cfg != *config.Default() {
		t.Errorf("LoadConfig({}) = %+v, Default() = %+v", cfg, config.Default())
	}
	if err := config.Default().Validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}

func TestLoadConfig_InvalidLogLevel(t *testing.T) {
	_, err := config.LoadConfig(writeTemp(t, "log_level: verbose\n"))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error %q does not mention log_level", err.Error())
	}
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	_, err := config.LoadConfig(writeTemp(t, "backend: kqueue\n"))
	if err == nil {
		t.Fatal("expected error for invalid backend, got nil")
	}
	if !strings.Contains(err.Error(), "kqueue") {
		t.Errorf("error %q does not mention invalid backend %q", err.Error(), "kqueue")
	}
}

func TestLoadConfig_InvalidStatusAddr(t *testing.T) {
	_, err := config.LoadConfig(writeTemp(t, "status_addr: localhost\n"))
	if err == nil {
		t.Fatal("expected error for status_addr without port, got nil")
	}
	if !strings.Contains(err.Error(), "status_addr") {
		t.Errorf("error %q does not mention status_addr", err.Error())
	}
}

func TestLoadConfig_NegativeHistoryLimit(t *testing.T) {
	_, err := config.LoadConfig(writeTemp(t, "history_limit: -1\n"))
	if err == nil {
		t.Fatal("expected error for negative history_limit, got nil")
	}
}

func TestLoadConfig_ReportsEveryProblem(t *testing.T) {
	_, err := config.LoadConfig(writeTemp(t, "log_level: loud\nbackend: dtrace\n"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err.Error(), want)
		}
	}
}

func TestValidate_AfterOverride(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "trace"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error after invalid override, got nil")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	for _, content := range []string{"conf_path: [unclosed", "log_level: {"} {
		_, err := config.LoadConfig(writeTemp(t, content))
		if err == nil {
			t.Fatalf("%q: expected error for invalid YAML, got nil", content)
		}
		if !strings.Contains(err.Error(), "cannot parse") {
			t.Errorf("%q: expected a parse error, got %v", content, err)
		}
	}
}

func TestLoadConfig_WrongFieldType(t *testing.T) {
	_, err := config.LoadConfig(writeTemp(t, "history_limit: lots\n"))
	var te *yaml.TypeError
	if !errors.As(err, &te) {
		t.Fatalf("expected *yaml.TypeError, got %v", err)
	}
}
