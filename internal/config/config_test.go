package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their defaults.
func newFlagBinder(defaults Config, args ...string) (*fakeBinder, error) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &fakeBinder{fs: fs}, nil
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	defaults := DefaultConfig()
	binder, err := newFlagBinder(defaults)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{Cmd: binder, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != defaults {
		t.Errorf("Load() = %+v; want defaults %+v", cfg, defaults)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	defaults := DefaultConfig()
	binder, err := newFlagBinder(defaults, "--chain-order=3", "--server-listen-addr=:9999", "--chain-temperature=0.5")
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{Cmd: binder, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chain.Order != 3 {
		t.Errorf("Chain.Order = %d; want 3", cfg.Chain.Order)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":9999")
	}
	if cfg.Chain.Temperature != 0.5 {
		t.Errorf("Chain.Temperature = %v; want 0.5", cfg.Chain.Temperature)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MARKOVD_CHAIN_TOP_K", "5")
	t.Setenv("MARKOVD_LOG_LEVEL", "debug")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chain.TopK != 5 {
		t.Errorf("Chain.TopK = %d; want 5", cfg.Chain.TopK)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want debug", cfg.LogLevel)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	cfgFile := writeConfig(t, "markovd.yaml", `
log_level: error
server:
  listen_addr: ":7777"
chain:
  order: 4
`)
	defaults := DefaultConfig()
	binder, err := newFlagBinder(defaults, "--chain-top-k=2")
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{Cmd: binder, ConfigFile: cfgFile, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "error")
	}
	if cfg.Server.ListenAddr != ":7777" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":7777")
	}
	if cfg.Chain.Order != 4 {
		t.Errorf("Chain.Order = %d; want 4", cfg.Chain.Order)
	}
	if cfg.Chain.TopK != 2 {
		t.Errorf("Chain.TopK = %d; want 2 from the flag", cfg.Chain.TopK)
	}
	if cfg.Store.DatabasePath != defaults.Store.DatabasePath {
		t.Errorf("Store.DatabasePath = %q; want the default", cfg.Store.DatabasePath)
	}
}

func TestLoad_WritesDefaultFile(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "markovd.json")
	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{ConfigFile: cfgFile, Defaults: defaults, WriteDefault: true})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != defaults {
		t.Errorf("Load() = %+v; want defaults", cfg)
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		t.Fatalf("default config file was not written: %v", err)
	}
	var written Config
	if err := json.Unmarshal(data, &written); err != nil {
		t.Fatalf("default config file is not valid JSON: %v", err)
	}
	if written != defaults {
		t.Errorf("written config = %+v; want %+v", written, defaults)
	}

	// An existing file is never overwritten.
	if err := os.WriteFile(cfgFile, []byte(`{"chain": {"order": 1}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(LoadOptions{ConfigFile: cfgFile, Defaults: defaults, WriteDefault: true})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chain.Order != 1 {
		t.Errorf("Chain.Order = %d; want 1 from the existing file", cfg.Chain.Order)
	}
}

func TestLoad_Errors(t *testing.T) {
	defaults := DefaultConfig()

	if _, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml"), Defaults: defaults}); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
	if _, err := Load(LoadOptions{ConfigFile: writeConfig(t, "bad.yaml", "chain: [unclosed"), Defaults: defaults}); err == nil {
		t.Error("expected an error for an invalid config file")
	}
	if _, err := Load(LoadOptions{ConfigFile: writeConfig(t, "neg.yaml", "chain:\n  order: -1\n"), Defaults: defaults}); err == nil {
		t.Error("expected a validation error for a negative order")
	}
	if _, err := Load(LoadOptions{ConfigFile: writeConfig(t, "lvl.yaml", "log_level: loud\n"), Defaults: defaults}); err == nil {
		t.Error("expected a validation error for an unknown log level")
	}
}

func TestParseLogLevel(t *testing.T) {
	testCases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range testCases {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
