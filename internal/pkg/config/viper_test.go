package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

const sample = `
modules:
  otp:
    max_attempts: 5
    default_ttl_minutes: 10
    operation_timeout_seconds: 3
instrument:
  log_mask_fields: "code, password ,,token"
broker:
  routes: "otp_issued:email, audit:log"
`

func TestNewViperFromBytes_Getters(t *testing.T) {
	cfg, err := NewViperFromBytes("yaml", []byte(sample), WithDefaults(map[string]any{
		"modules.otp.code_length": 6,
	}))
	if err != nil {
		t.Fatalf("NewViperFromBytes() error = %v", err)
	}

	if got := cfg.GetInt("modules.otp.max_attempts"); got != 5 {
		t.Fatalf("max_attempts = %d", got)
	}
	if got := cfg.GetInt("modules.otp.code_length"); got != 6 {
		t.Fatalf("default code_length = %d", got)
	}
	if got := cfg.GetMinute("modules.otp.default_ttl_minutes"); got != 10*time.Minute {
		t.Fatalf("ttl = %v", got)
	}
	if got := cfg.GetSecond("modules.otp.operation_timeout_seconds"); got != 3*time.Second {
		t.Fatalf("timeout = %v", got)
	}
	if got := cfg.GetArray("instrument.log_mask_fields"); !slices.Equal(got, []string{"code", "password", "token"}) {
		t.Fatalf("GetArray() = %v", got)
	}
	if got := cfg.GetMap("broker.routes"); got["otp_issued"] != "email" || got["audit"] != "log" {
		t.Fatalf("GetMap() = %v", got)
	}
	if got := cfg.GetArray("missing.key"); len(got) != 0 {
		t.Fatalf("missing GetArray() = %v", got)
	}
}

func TestNewViperFromBytes_RequiresType(t *testing.T) {
	if _, err := NewViperFromBytes(" ", nil); err == nil {
		t.Fatalf("expected error for empty config type")
	}
}

func TestNewViper_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte(sample), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("YIELDCYCLE_MODULES_OTP_MAX_ATTEMPTS", "7")

	cfg, err := NewViper(file, WithEnvPrefix("YIELDCYCLE"))
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	defer cfg.Close()

	if got := cfg.GetInt("modules.otp.max_attempts"); got != 7 {
		t.Fatalf("max_attempts = %d, want env override 7", got)
	}
}
