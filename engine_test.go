package sessionkit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/halcyonlabs/sessionkit/biometric"
	"github.com/halcyonlabs/sessionkit/securestore"
	"github.com/halcyonlabs/sessionkit/session"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeProvider struct {
	mu          sync.Mutex
	refreshFn   func(ctx context.Context, refreshToken string) (TokenSet, error)
	validateErr error
	refreshes   int
}

func (p *fakeProvider) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	p.mu.Lock()
	p.refreshes++
	fn := p.refreshFn
	p.mu.Unlock()
	if fn == nil {
		return TokenSet{}, errors.New("no refresh configured")
	}
	return fn(ctx, refreshToken)
}

func (p *fakeProvider) Validate(ctx context.Context, accessToken string) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.validateErr != nil {
		return nil, p.validateErr
	}
	return json.RawMessage(`{"sub":"user-1"}`), nil
}

type stubSensor struct {
	mu           sync.Mutex
	challengeErr error
}

func (s *stubSensor) Probe(ctx context.Context) (biometric.Capability, error) {
	return biometric.Capability{Available: true, Kind: biometric.KindFace, Enrolled: true}, nil
}

func (s *stubSensor) Challenge(ctx context.Context, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.challengeErr
}

func (s *stubSensor) fail(err error) {
	s.mu.Lock()
	s.challengeErr = err
	s.mu.Unlock()
}

type testDeps struct {
	clock    *fakeClock
	provider *fakeProvider
	sensor   *stubSensor
	backend  *securestore.MemoryKeystore
}

func newTestEngine(t *testing.T, cfg Config, deps *testDeps) *Engine {
	t.Helper()

	if deps.clock == nil {
		deps.clock = newFakeClock()
	}
	if deps.backend == nil {
		deps.backend = securestore.NewMemoryKeystore()
	}
	if deps.sensor == nil {
		deps.sensor = &stubSensor{}
	}

	b := New().
		WithConfig(cfg).
		WithKeystore(deps.backend).
		WithPresenceSensor(deps.sensor).
		WithDeviceInfo(DeviceInfo{DeviceID: "device-1", Model: "Pixel", OSVersion: "15", AppVersion: "1.0.0"})
	if deps.provider != nil {
		b = b.WithIdentityProvider(deps.provider)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	engine.now = deps.clock.Now

	if err := engine.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func metricsOn() Config {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	return cfg
}

func mustCreate(t *testing.T, e *Engine, clock *fakeClock, ttl time.Duration) *session.Session {
	t.Helper()
	sess, err := e.CreateSession(context.Background(), []byte(`{"sub":"user-1"}`),
		"access-1", "refresh-1", clock.Now().Add(ttl), session.ProviderPassword)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func TestBuildRequiresBackendAndDevice(t *testing.T) {
	if _, err := New().WithDeviceInfo(DeviceInfo{DeviceID: "d"}).Build(); err == nil {
		t.Fatal("Build without keystore backend must fail")
	}
	if _, err := New().WithKeystore(securestore.NewMemoryKeystore()).Build(); err == nil {
		t.Fatal("Build without device info must fail")
	}
}

func TestCreateAndValidateSession(t *testing.T) {
	deps := &testDeps{}
	e := newTestEngine(t, DefaultConfig(), deps)

	sess := mustCreate(t, e, deps.clock, time.Hour)
	if sess.SessionID == "" || sess.AccessToken != "access-1" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if e.State() != StateActive {
		t.Fatalf("state = %v, want active", e.State())
	}

	result := e.ValidateSession(context.Background())
	if !result.IsValid || result.NeedsRefresh || result.ShouldReauthenticate {
		t.Fatalf("fresh session invalid: %+v", result)
	}
}

func TestCreateSessionRejectsPastExpiry(t *testing.T) {
	deps := &testDeps{}
	e := newTestEngine(t, DefaultConfig(), deps)

	_, err := e.CreateSession(context.Background(), nil, "a", "r",
		deps.clock.Now().Add(-time.Minute), session.ProviderPassword)
	if !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("err = %v, want ErrInvalidExpiry", err)
	}
}

func TestValidateNeedsRefreshInsideThreshold(t *testing.T) {
	// Threshold 5m, token expires in 4m: valid but refresh is due.
	deps := &testDeps{}
	e := newTestEngine(t, DefaultConfig(), deps)
	mustCreate(t, e, deps.clock, 4*time.Minute)

	result := e.ValidateSession(context.Background())
	if !result.IsValid || !result.NeedsRefresh {
		t.Fatalf("result = %+v, want valid with refresh due", result)
	}
}

func TestValidateSessionTimeout(t *testing.T) {
	// Absolute timeout 30m; 31 minutes after creation the session demands
	// re-authentication even though the token is alive.
	cfg := DefaultConfig()
	cfg.Session.SessionTimeoutMinutes = 30
	deps := &testDeps{}
	e := newTestEngine(t, cfg, deps)
	mustCreate(t, e, deps.clock, 2*time.Hour)

	deps.clock.Advance(31 * time.Minute)
	result := e.ValidateSession(context.Background())
	if result.IsValid || !result.ShouldReauthenticate || result.Reason != ReasonTimedOut {
		t.Fatalf("result = %+v, want timed out", result)
	}
}

func TestValidateInactivity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.MaxInactiveMinutes = 10
	deps := &testDeps{}
	e := newTestEngine(t, cfg, deps)
	mustCreate(t, e, deps.clock, 2*time.Hour)

	deps.clock.Advance(9 * time.Minute)
	e.UpdateActivity()
	deps.clock.Advance(9 * time.Minute)
	if result := e.ValidateSession(context.Background()); !result.IsValid {
		t.Fatalf("activity stamp ignored: %+v", result)
	}

	deps.clock.Advance(11 * time.Minute)
	result := e.ValidateSession(context.Background())
	if result.IsValid || result.Reason != ReasonInactive || !errors.Is(result.Err, ErrSessionInactive) {
		t.Fatalf("result = %+v, want inactive", result)
	}
}

func TestValidateExpiredNeedsRefreshNotReauth(t *testing.T) {
	deps := &testDeps{}
	e := newTestEngine(t, DefaultConfig(), deps)
	mustCreate(t, e, deps.clock, 10*time.Minute)

	deps.clock.Advance(11 * time.Minute)
	result := e.ValidateSession(context.Background())
	if result.IsValid || !result.NeedsRefresh || result.ShouldReauthenticate {
		t.Fatalf("result = %+v, want expired needing refresh", result)
	}
}

func TestValidateFingerprintMismatch(t *testing.T) {
	deps := &testDeps{}
	e := newTestEngine(t, DefaultConfig(), deps)
	mustCreate(t, e, deps.clock, time.Hour)

	// The device is reimaged under the session's feet.
	e.device.OSVersion = "16"
	result := e.ValidateSession(context.Background())
	if result.IsValid || result.Reason != ReasonFingerprintMismatch || !errors.Is(result.Err, ErrFingerprintMismatch) {
		t.Fatalf("result = %+v, want fingerprint mismatch", result)
	}
}

func TestValidateRemoteRejection(t *testing.T) {
	deps := &testDeps{provider: &fakeProvider{validateErr: errors.New("revoked")}}
	e := newTestEngine(t, DefaultConfig(), deps)
	mustCreate(t, e, deps.clock, time.Hour)

	result := e.ValidateSession(context.Background())
	if result.IsValid || !result.NeedsRefresh || result.Reason != ReasonRemoteRejected {
		t.Fatalf("result = %+v, want remote rejection", result)
	}
	if !errors.Is(result.Err, ErrProviderRejected) {
		t.Fatalf("Err = %v, want ErrProviderRejected", result.Err)
	}
}

func TestRefreshSessionSuccess(t *testing.T) {
	deps := &testDeps{provider: &fakeProvider{}}
	deps.clock = newFakeClock()
	deps.provider.refreshFn = func(ctx context.Context, rt string) (TokenSet, error) {
		if rt != "refresh-1" {
			return TokenSet{}, errors.New("wrong refresh token")
		}
		return TokenSet{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			ExpiresAt:    deps.clock.Now().Add(time.Hour),
		}, nil
	}
	e := newTestEngine(t, metricsOn(), deps)
	mustCreate(t, e, deps.clock, 10*time.Minute)

	deps.clock.Advance(11 * time.Minute)
	if !e.RefreshSessionIfNeeded(context.Background()) {
		t.Fatal("refresh should restore validity")
	}

	sess := e.GetCurrentSession()
	if sess.AccessToken != "access-2" || sess.RefreshToken != "refresh-2" {
		t.Fatalf("tokens not rotated: %+v", sess)
	}
	if sess.LastRefreshAt != deps.clock.Now().Unix() {
		t.Fatalf("LastRefreshAt not stamped: %d", sess.LastRefreshAt)
	}
	if e.metrics.Value(MetricRefreshSuccess) != 1 {
		t.Fatal("refresh success metric not incremented")
	}
}

func TestRefreshFailureClearsSession(t *testing.T) {
	deps := &testDeps{provider: &fakeProvider{}}
	deps.provider.refreshFn = func(ctx context.Context, rt string) (TokenSet, error) {
		return TokenSet{}, errors.New("provider says no")
	}
	e := newTestEngine(t, metricsOn(), deps)
	mustCreate(t, e, deps.clock, 10*time.Minute)

	if e.RefreshSession(context.Background()) {
		t.Fatal("refresh must report failure")
	}
	if e.GetCurrentSession() != nil {
		t.Fatal("failed refresh must not retain partial state")
	}
	if e.State() != StateUnauthenticated {
		t.Fatalf("state = %v, want unauthenticated", e.State())
	}
}

func TestRefreshFailureAuditsSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(16)

	deps := &testDeps{provider: &fakeProvider{}}
	deps.clock = newFakeClock()
	deps.backend = securestore.NewMemoryKeystore()
	deps.sensor = &stubSensor{}
	deps.provider.refreshFn = func(ctx context.Context, rt string) (TokenSet, error) {
		return TokenSet{}, errors.New("provider says no")
	}

	e, err := New().
		WithConfig(cfg).
		WithKeystore(deps.backend).
		WithPresenceSensor(deps.sensor).
		WithIdentityProvider(deps.provider).
		WithAuditSink(sink).
		WithDeviceInfo(DeviceInfo{DeviceID: "device-1"}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e.now = deps.clock.Now
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(e.Close)
	mustCreate(t, e, deps.clock, 10*time.Minute)

	if e.RefreshSession(context.Background()) {
		t.Fatal("refresh must report failure")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType != AuditSessionRefreshed {
				continue
			}
			if ev.Success || !strings.Contains(ev.Error, ErrRefreshFailed.Error()) {
				t.Fatalf("refresh audit = %+v, want failure wrapping %q", ev, ErrRefreshFailed)
			}
			return
		case <-deadline:
			t.Fatal("no refresh audit event emitted")
		}
	}
}

func TestStaleRefreshDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	deps := &testDeps{provider: &fakeProvider{}}
	deps.clock = newFakeClock()
	deps.provider.refreshFn = func(ctx context.Context, rt string) (TokenSet, error) {
		close(entered)
		<-release
		return TokenSet{AccessToken: "late", ExpiresAt: deps.clock.Now().Add(time.Hour)}, nil
	}
	e := newTestEngine(t, metricsOn(), deps)
	mustCreate(t, e, deps.clock, time.Hour)

	done := make(chan bool, 1)
	go func() { done <- e.RefreshSession(context.Background()) }()
	<-entered

	if err := e.ClearSession(context.Background()); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	close(release)

	if <-done {
		t.Fatal("stale refresh must report failure")
	}
	if e.GetCurrentSession() != nil {
		t.Fatal("stale refresh resurrected a cleared session")
	}
	if e.metrics.Value(MetricStaleRefreshDiscarded) != 1 {
		t.Fatal("stale refresh metric not incremented")
	}
}

func TestResumeBiometricFailureClears(t *testing.T) {
	cfg := metricsOn()
	cfg.Session.RequireBiometricOnResume = true
	deps := &testDeps{}
	e := newTestEngine(t, cfg, deps)
	mustCreate(t, e, deps.clock, time.Hour)

	deps.sensor.fail(biometric.ErrLockedOut)
	if e.HandleAppResume(context.Background()) {
		t.Fatal("resume must fail when the challenge is denied")
	}
	if e.GetCurrentSession() != nil {
		t.Fatal("denied resume must clear the session")
	}
	if e.metrics.Value(MetricResumeDenied) != 1 {
		t.Fatal("resume denied metric not incremented")
	}
}

func TestResumeSuccessRefreshes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.RequireBiometricOnResume = true
	deps := &testDeps{provider: &fakeProvider{}}
	deps.clock = newFakeClock()
	deps.provider.refreshFn = func(ctx context.Context, rt string) (TokenSet, error) {
		return TokenSet{AccessToken: "access-2", ExpiresAt: deps.clock.Now().Add(time.Hour)}, nil
	}
	e := newTestEngine(t, cfg, deps)
	mustCreate(t, e, deps.clock, 4*time.Minute)

	if !e.HandleAppResume(context.Background()) {
		t.Fatal("resume with passing challenge must succeed")
	}
	if got := e.GetCurrentSession().AccessToken; got != "access-2" {
		t.Fatalf("resume did not refresh: %q", got)
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	backend := securestore.NewMemoryKeystore()
	deps := &testDeps{backend: backend}
	e := newTestEngine(t, DefaultConfig(), deps)
	created := mustCreate(t, e, deps.clock, time.Hour)
	e.Close()

	deps2 := &testDeps{backend: backend, clock: deps.clock}
	e2 := newTestEngine(t, DefaultConfig(), deps2)
	if !e2.IsAuthenticated(context.Background()) {
		t.Fatal("persisted session not restored")
	}
	restored := e2.GetCurrentSession()
	if restored.SessionID != created.SessionID || restored.AccessToken != created.AccessToken {
		t.Fatalf("restored session differs: %+v", restored)
	}
}

func TestClearSessionIdempotent(t *testing.T) {
	deps := &testDeps{}
	e := newTestEngine(t, DefaultConfig(), deps)
	mustCreate(t, e, deps.clock, time.Hour)

	ctx := context.Background()
	if err := e.ClearSession(ctx); err != nil {
		t.Fatalf("first clear: %v", err)
	}
	if err := e.ClearSession(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if e.IsAuthenticated(ctx) {
		t.Fatal("cleared session still authenticates")
	}
}

func TestUpdatePolicyTakesEffect(t *testing.T) {
	deps := &testDeps{}
	e := newTestEngine(t, DefaultConfig(), deps)
	mustCreate(t, e, deps.clock, 2*time.Hour)

	policy := e.config.Session
	policy.SessionTimeoutMinutes = 15
	if err := e.UpdatePolicy(policy); err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}

	deps.clock.Advance(16 * time.Minute)
	result := e.ValidateSession(context.Background())
	if result.IsValid || result.Reason != ReasonTimedOut {
		t.Fatalf("new policy not applied: %+v", result)
	}

	bad := policy
	bad.DefaultTokenTTL = 0
	if err := e.UpdatePolicy(bad); err == nil {
		t.Fatal("invalid policy must be rejected")
	}
}

func TestUpdatePolicyConcurrentCallers(t *testing.T) {
	// Policy swaps restart the monitors; overlapping callers must not
	// corrupt the monitor lifecycle or the config they are mutating.
	deps := &testDeps{}
	e := newTestEngine(t, DefaultConfig(), deps)
	mustCreate(t, e, deps.clock, 2*time.Hour)

	base := DefaultConfig().Session
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			policy := base
			policy.SessionTimeoutMinutes = 60 + n
			for j := 0; j < 25; j++ {
				if err := e.UpdatePolicy(policy); err != nil {
					t.Errorf("UpdatePolicy: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if result := e.ValidateSession(context.Background()); !result.IsValid {
		t.Fatalf("session invalid after concurrent policy updates: %+v", result)
	}
	if err := e.ClearSession(context.Background()); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
}

func TestValidationErrCarriesSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.SessionTimeoutMinutes = 30
	deps := &testDeps{}
	e := newTestEngine(t, cfg, deps)
	ctx := context.Background()

	if result := e.ValidateSession(ctx); !errors.Is(result.Err, ErrNoSession) {
		t.Fatalf("no-session Err = %v, want ErrNoSession", result.Err)
	}

	mustCreate(t, e, deps.clock, 10*time.Minute)
	if result := e.ValidateSession(ctx); result.Err != nil {
		t.Fatalf("valid session carries Err: %v", result.Err)
	}

	deps.clock.Advance(11 * time.Minute)
	if result := e.ValidateSession(ctx); !errors.Is(result.Err, ErrSessionExpired) {
		t.Fatalf("expired Err = %v, want ErrSessionExpired", result.Err)
	}

	// A live token can still hit the absolute lifetime cap.
	if err := e.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	mustCreate(t, e, deps.clock, 2*time.Hour)
	deps.clock.Advance(31 * time.Minute)
	if result := e.ValidateSession(ctx); !errors.Is(result.Err, ErrSessionTimedOut) {
		t.Fatalf("timed-out Err = %v, want ErrSessionTimedOut", result.Err)
	}
}

func TestAuditTrail(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(16)

	deps := &testDeps{}
	deps.clock = newFakeClock()
	deps.backend = securestore.NewMemoryKeystore()
	deps.sensor = &stubSensor{}

	b := New().
		WithConfig(cfg).
		WithKeystore(deps.backend).
		WithPresenceSensor(deps.sensor).
		WithAuditSink(sink).
		WithDeviceInfo(DeviceInfo{DeviceID: "device-1"})
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e.now = deps.clock.Now
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(e.Close)

	mustCreate(t, e, deps.clock, time.Hour)
	if err := e.ClearSession(context.Background()); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}

	want := []string{AuditSessionCreated, AuditSessionCleared}
	for _, eventType := range want {
		select {
		case ev := <-sink.Events():
			if ev.EventType != eventType {
				t.Fatalf("event = %q, want %q", ev.EventType, eventType)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no %q event emitted", eventType)
		}
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().
		WithKeystore(securestore.NewMemoryKeystore()).
		WithDeviceInfo(DeviceInfo{DeviceID: "d"})
	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build must fail")
	}
}
