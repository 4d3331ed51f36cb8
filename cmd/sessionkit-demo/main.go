// Command sessionkit-demo runs a scripted session lifecycle against a real
// or in-process Redis keystore: create, validate, refresh, resume with a
// fake presence sensor, and clear.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/halcyonlabs/sessionkit"
	"github.com/halcyonlabs/sessionkit/biometric"
	"github.com/halcyonlabs/sessionkit/session"
)

// demoSensor approves every challenge; with -deny-resume it approves the
// session-creation challenge and denies everything after, so the resume
// path's clear-on-denial is observable.
type demoSensor struct {
	deny  bool
	calls int
}

func (s *demoSensor) Probe(ctx context.Context) (biometric.Capability, error) {
	return biometric.Capability{Available: true, Kind: biometric.KindFingerprint, Enrolled: true}, nil
}

func (s *demoSensor) Challenge(ctx context.Context, prompt string) error {
	s.calls++
	fmt.Printf("  [sensor] challenge %d: %q\n", s.calls, prompt)
	if s.deny && s.calls > 1 {
		return biometric.ErrUserCancelled
	}
	return nil
}

// demoProvider mints short-lived opaque tokens locally.
type demoProvider struct {
	ttl time.Duration
	n   int
}

func (p *demoProvider) Refresh(ctx context.Context, refreshToken string) (sessionkit.TokenSet, error) {
	if refreshToken == "" {
		return sessionkit.TokenSet{}, errors.New("empty refresh token")
	}
	p.n++
	return sessionkit.TokenSet{
		AccessToken:  fmt.Sprintf("access-%d", p.n),
		RefreshToken: fmt.Sprintf("refresh-%d", p.n),
		ExpiresAt:    time.Now().Add(p.ttl),
	}, nil
}

func (p *demoProvider) Validate(ctx context.Context, accessToken string) (json.RawMessage, error) {
	return json.RawMessage(`{"sub":"demo-user"}`), nil
}

func main() {
	var (
		configPath = flag.String("config", "", "optional YAML config file")
		denyResume = flag.Bool("deny-resume", false, "make the fake sensor deny the resume challenge")
		tokenTTL   = flag.Duration("token-ttl", 3*time.Minute, "lifetime of minted access tokens")
	)
	flag.Parse()

	_ = godotenv.Load()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := sessionkit.HighSecurityConfig()
	if *configPath != "" {
		loaded, err := sessionkit.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	addr := os.Getenv("REDIS_ADDR")
	var cleanup func()
	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() { _ = client.Close(); mr.Close() }
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	sensor := &demoSensor{deny: *denyResume}
	provider := &demoProvider{ttl: *tokenTTL}

	engine, err := sessionkit.New().
		WithConfig(cfg).
		WithRedis(client).
		WithIdentityProvider(provider).
		WithPresenceSensor(sensor).
		WithDeviceInfo(sessionkit.DeviceInfo{
			DeviceID:   hostDeviceID(),
			Model:      "demo-host",
			OSVersion:  "linux",
			AppVersion: "0.1.0",
		}).
		WithAuditSink(sessionkit.NewJSONWriterSink(os.Stdout)).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "initialize: %v\n", err)
		os.Exit(1)
	}

	level := engine.SecurityLevel(ctx)
	fmt.Printf("security level: %s (biometric capable: %v)\n", level.Level, level.BiometricCapable)

	fmt.Println("creating session...")
	sess, err := engine.CreateSession(ctx, []byte(`{"sub":"demo-user"}`),
		"access-0", "refresh-0", time.Now().Add(*tokenTTL), session.ProviderPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create session: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("session %s created, expires %s\n", sess.SessionID, time.Unix(sess.ExpiresAt, 0).Format(time.RFC3339))

	result := engine.ValidateSession(ctx)
	fmt.Printf("validate: valid=%v needsRefresh=%v\n", result.IsValid, result.NeedsRefresh)

	fmt.Println("forcing a refresh...")
	if engine.RefreshSession(ctx) {
		fmt.Printf("refreshed, new access token: %s\n", engine.GetCurrentSession().AccessToken)
	} else {
		fmt.Println("refresh failed")
	}

	fmt.Println("simulating app resume...")
	if engine.HandleAppResume(ctx) {
		fmt.Println("resume ok, session still valid")
	} else {
		fmt.Println("resume denied, session cleared")
	}

	if engine.GetCurrentSession() != nil {
		fmt.Println("clearing session...")
		if err := engine.ClearSession(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "clear session: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("authenticated after clear: %v\n", engine.IsAuthenticated(ctx))
	fmt.Printf("audit events dropped: %d\n", engine.AuditDropped())
}

// hostDeviceID derives a stable per-host identifier for the demo.
func hostDeviceID() string {
	if env := os.Getenv("SESSIONKIT_DEVICE_ID"); env != "" {
		return env
	}
	host, err := os.Hostname()
	if err != nil {
		return "demo-device"
	}
	return "demo-" + host
}
