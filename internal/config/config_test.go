package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFlags_Defaults(t *testing.T) {
	f, err := ParseFlags(nil)
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	if f.Port != 0 {
		t.Errorf("expected zero-value port, got %d", f.Port)
	}
}

func TestLoad_Defaults(t *testing.T) {
	res, err := Load(Flags{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", res.Server.Addr)
	}
	if res.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", res.LogLevel)
	}
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "h2gate.json")
	contents := `{"server": {"host": "127.0.0.1", "port": 9000}, "logging": {"level": "debug"}}`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	res, err := Load(Flags{ConfigPath: path, Port: 9100})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Server.Addr != "127.0.0.1:9100" {
		t.Errorf("expected flag port to win over file, got %s", res.Server.Addr)
	}
	if res.LogLevel != "debug" {
		t.Errorf("expected file log level to carry through, got %s", res.LogLevel)
	}
}

func TestLoad_EnvOverridesFlags(t *testing.T) {
	t.Setenv("H2GATE_PORT", "9200")
	t.Setenv("H2GATE_LOG_LEVEL", "silent")

	res, err := Load(Flags{Port: 9100, LogLevel: "debug"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Server.Addr != ":9200" {
		t.Errorf("expected env port to win over flag, got %s", res.Server.Addr)
	}
	if res.LogLevel != "silent" {
		t.Errorf("expected env log level to win, got %s", res.LogLevel)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"server": {"port": "not-a-number"}}`), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(Flags{ConfigPath: path}); err == nil {
		t.Error("expected error for malformed config file")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(Flags{ConfigPath: "/nonexistent/h2gate.json"}); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_TLSIncompletePropagatesValidateError(t *testing.T) {
	_, err := Load(Flags{TLSEnabled: true, TLSCertFile: "cert.pem"})
	if err == nil {
		t.Error("expected validation error for incomplete TLS config")
	}
}
