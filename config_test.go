package sessionkit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	high := HighSecurityConfig()
	if err := high.Validate(); err != nil {
		t.Fatalf("high security config invalid: %v", err)
	}
	if !high.Session.RequireBiometricOnResume || !high.Session.DeviceFingerprintValidation {
		t.Fatal("high security preset must gate resume and validate fingerprints")
	}
	if high.Session.MaxInactiveMinutes == 0 || high.Session.SessionTimeoutMinutes == 0 {
		t.Fatal("high security preset must bound lifetime and inactivity")
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Session.RefreshThresholdMinutes = -1 },
		func(c *Config) { c.Session.DefaultTokenTTL = 0 },
		func(c *Config) { c.Keystore.MaxValueSize = 0 },
		func(c *Config) { c.Recovery.MaxAttempts = 0 },
		func(c *Config) { c.Recovery.BaseDelay = 0 },
		func(c *Config) { c.Monitor.RefreshInterval = 0 },
		func(c *Config) { c.Monitor.SweepInterval = 0 },
		func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: invalid config accepted", i)
		}
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessionkit.yaml")
	raw := `
session:
  refresh_threshold_minutes: 10
  require_biometric_on_resume: true
  session_timeout_minutes: 120
monitor:
  refresh_interval_seconds: 30
recovery:
  base_delay_ms: 250
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Session.RefreshThresholdMinutes != 10 {
		t.Fatalf("refresh threshold = %d", cfg.Session.RefreshThresholdMinutes)
	}
	if !cfg.Session.RequireBiometricOnResume {
		t.Fatal("resume gating not applied")
	}
	if cfg.Session.SessionTimeoutMinutes != 120 {
		t.Fatalf("timeout = %d", cfg.Session.SessionTimeoutMinutes)
	}
	if cfg.Monitor.RefreshInterval != 30*time.Second {
		t.Fatalf("refresh interval = %v", cfg.Monitor.RefreshInterval)
	}
	if cfg.Recovery.BaseDelay != 250*time.Millisecond {
		t.Fatalf("base delay = %v", cfg.Recovery.BaseDelay)
	}

	// Untouched keys keep their defaults.
	if cfg.Monitor.SweepInterval != 300*time.Second {
		t.Fatalf("sweep interval = %v", cfg.Monitor.SweepInterval)
	}
	if !cfg.Session.AutoRefreshEnabled {
		t.Fatal("auto refresh default lost")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessionkit.yaml")
	raw := "recovery:\n  max_attempts: 0\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("invalid file accepted")
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}
