package sessionkit

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines a public type used by sessionkit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Session  SessionPolicy
	Keystore KeystoreConfig
	Recovery RecoveryConfig
	Monitor  MonitorConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
SESSION POLICY
====================================
*/

// SessionPolicy defines a public type used by sessionkit APIs.
//
// SessionPolicy instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionPolicy struct {
	AutoRefreshEnabled          bool
	RefreshThresholdMinutes     int
	MaxInactiveMinutes          int // 0 disables the inactivity check
	SessionTimeoutMinutes       int // 0 disables the absolute timeout
	RequireBiometricOnResume    bool
	DeviceFingerprintValidation bool

	// DefaultTokenTTL applies when the provider omits an expiry and the
	// access token carries no recoverable exp claim.
	DefaultTokenTTL time.Duration
}

// KeystoreConfig defines a public type used by sessionkit APIs.
//
// KeystoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type KeystoreConfig struct {
	RedisPrefix  string
	MaxValueSize int
}

// RecoveryConfig defines a public type used by sessionkit APIs.
//
// RecoveryConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RecoveryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// MonitorConfig defines a public type used by sessionkit APIs.
//
// MonitorConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MonitorConfig struct {
	RefreshInterval time.Duration
	SweepInterval   time.Duration
}

// AuditConfig defines a public type used by sessionkit APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by sessionkit APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Session: SessionPolicy{
			AutoRefreshEnabled:          true,
			RefreshThresholdMinutes:     5,
			MaxInactiveMinutes:          0,
			SessionTimeoutMinutes:       0,
			RequireBiometricOnResume:    false,
			DeviceFingerprintValidation: true,
			DefaultTokenTTL:             15 * time.Minute,
		},
		Keystore: KeystoreConfig{
			RedisPrefix:  "sk",
			MaxValueSize: 256 * 1024,
		},
		Recovery: RecoveryConfig{
			MaxAttempts: 3,
			BaseDelay:   1000 * time.Millisecond,
		},
		Monitor: MonitorConfig{
			RefreshInterval: 60 * time.Second,
			SweepInterval:   300 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the permissive baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

// HighSecurityConfig returns a strict preset: biometric gating on resume,
// fingerprint validation, bounded session lifetime and inactivity, audit
// and metrics on.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.Session.RequireBiometricOnResume = true
	cfg.Session.DeviceFingerprintValidation = true
	cfg.Session.SessionTimeoutMinutes = 12 * 60
	cfg.Session.MaxInactiveMinutes = 30
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if c.Session.RefreshThresholdMinutes < 0 {
		return errors.New("Session RefreshThresholdMinutes must be >= 0")
	}
	if c.Session.MaxInactiveMinutes < 0 {
		return errors.New("Session MaxInactiveMinutes must be >= 0")
	}
	if c.Session.SessionTimeoutMinutes < 0 {
		return errors.New("Session SessionTimeoutMinutes must be >= 0")
	}
	if c.Session.DefaultTokenTTL <= 0 {
		return errors.New("Session DefaultTokenTTL must be > 0")
	}

	if c.Keystore.MaxValueSize <= 0 {
		return errors.New("Keystore MaxValueSize must be > 0")
	}

	if c.Recovery.MaxAttempts <= 0 {
		return errors.New("Recovery MaxAttempts must be > 0")
	}
	if c.Recovery.BaseDelay <= 0 {
		return errors.New("Recovery BaseDelay must be > 0")
	}

	if c.Monitor.RefreshInterval <= 0 {
		return errors.New("Monitor RefreshInterval must be > 0")
	}
	if c.Monitor.SweepInterval <= 0 {
		return errors.New("Monitor SweepInterval must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	return nil
}

/*
====================================
FILE LOADING
====================================
*/

// fileConfig is the YAML schema. Durations are spelled in plain units so
// config files stay human-editable.
type fileConfig struct {
	Session struct {
		AutoRefreshEnabled          *bool `yaml:"auto_refresh_enabled"`
		RefreshThresholdMinutes     *int  `yaml:"refresh_threshold_minutes"`
		MaxInactiveMinutes          *int  `yaml:"max_inactive_minutes"`
		SessionTimeoutMinutes       *int  `yaml:"session_timeout_minutes"`
		RequireBiometricOnResume    *bool `yaml:"require_biometric_on_resume"`
		DeviceFingerprintValidation *bool `yaml:"device_fingerprint_validation"`
		DefaultTokenTTLMinutes      *int  `yaml:"default_token_ttl_minutes"`
	} `yaml:"session"`
	Keystore struct {
		RedisPrefix  *string `yaml:"redis_prefix"`
		MaxValueSize *int    `yaml:"max_value_size"`
	} `yaml:"keystore"`
	Recovery struct {
		MaxAttempts *int `yaml:"max_attempts"`
		BaseDelayMS *int `yaml:"base_delay_ms"`
	} `yaml:"recovery"`
	Monitor struct {
		RefreshIntervalSeconds *int `yaml:"refresh_interval_seconds"`
		SweepIntervalSeconds   *int `yaml:"sweep_interval_seconds"`
	} `yaml:"monitor"`
	Audit struct {
		Enabled    *bool `yaml:"enabled"`
		BufferSize *int  `yaml:"buffer_size"`
		DropIfFull *bool `yaml:"drop_if_full"`
	} `yaml:"audit"`
	Metrics struct {
		Enabled                 *bool `yaml:"enabled"`
		EnableLatencyHistograms *bool `yaml:"enable_latency_histograms"`
	} `yaml:"metrics"`
}

// LoadConfig reads a YAML file and overlays it on the default
// configuration. Absent keys keep their defaults; the merged result is
// validated before being returned.
//
// LoadConfig may return an error when input validation, dependency calls, or security checks fail.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := defaultConfig()

	setBool(&cfg.Session.AutoRefreshEnabled, fc.Session.AutoRefreshEnabled)
	setInt(&cfg.Session.RefreshThresholdMinutes, fc.Session.RefreshThresholdMinutes)
	setInt(&cfg.Session.MaxInactiveMinutes, fc.Session.MaxInactiveMinutes)
	setInt(&cfg.Session.SessionTimeoutMinutes, fc.Session.SessionTimeoutMinutes)
	setBool(&cfg.Session.RequireBiometricOnResume, fc.Session.RequireBiometricOnResume)
	setBool(&cfg.Session.DeviceFingerprintValidation, fc.Session.DeviceFingerprintValidation)
	if fc.Session.DefaultTokenTTLMinutes != nil {
		cfg.Session.DefaultTokenTTL = time.Duration(*fc.Session.DefaultTokenTTLMinutes) * time.Minute
	}

	if fc.Keystore.RedisPrefix != nil {
		cfg.Keystore.RedisPrefix = *fc.Keystore.RedisPrefix
	}
	setInt(&cfg.Keystore.MaxValueSize, fc.Keystore.MaxValueSize)

	setInt(&cfg.Recovery.MaxAttempts, fc.Recovery.MaxAttempts)
	if fc.Recovery.BaseDelayMS != nil {
		cfg.Recovery.BaseDelay = time.Duration(*fc.Recovery.BaseDelayMS) * time.Millisecond
	}

	if fc.Monitor.RefreshIntervalSeconds != nil {
		cfg.Monitor.RefreshInterval = time.Duration(*fc.Monitor.RefreshIntervalSeconds) * time.Second
	}
	if fc.Monitor.SweepIntervalSeconds != nil {
		cfg.Monitor.SweepInterval = time.Duration(*fc.Monitor.SweepIntervalSeconds) * time.Second
	}

	setBool(&cfg.Audit.Enabled, fc.Audit.Enabled)
	setInt(&cfg.Audit.BufferSize, fc.Audit.BufferSize)
	setBool(&cfg.Audit.DropIfFull, fc.Audit.DropIfFull)

	setBool(&cfg.Metrics.Enabled, fc.Metrics.Enabled)
	setBool(&cfg.Metrics.EnableLatencyHistograms, fc.Metrics.EnableLatencyHistograms)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
