package sessionkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/halcyonlabs/sessionkit/biometric"
	"github.com/halcyonlabs/sessionkit/internal"
	"github.com/halcyonlabs/sessionkit/recovery"
	"github.com/halcyonlabs/sessionkit/securestore"
	"github.com/halcyonlabs/sessionkit/session"
)

// Secure store locations owned by the engine. cacheService holds disposable
// entries the recovery orchestrator may purge under storage pressure.
const (
	sessionService = "auth"
	sessionKey     = "session"
	cacheService   = "cache"
)

const resumePrompt = "Unlock your session"

// Engine defines a public type used by sessionkit APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config   Config
	store    *securestore.Store
	gate     *biometric.Gate
	provider IdentityProvider
	recovery *recovery.Orchestrator
	audit    *auditDispatcher
	metrics  *Metrics
	device   DeviceInfo
	log      zerolog.Logger
	sqlite   *securestore.SQLiteKeystore

	// mu serializes all session mutation; the generation counter makes a
	// refresh that completes after ClearSession discardable.
	mu          sync.Mutex
	current     *session.Session
	state       State
	generation  uint64
	initialized bool

	// monMu guards the live monitor set. Each set owns its goroutines and
	// WaitGroup; see monitorSet.
	monMu sync.Mutex
	mon   *monitorSet

	now func() time.Time
}

// Initialize derives the storage key, self-tests the keystore, and loads a
// previously persisted session if one exists. Must complete before any
// other engine method is called.
//
// Initialize may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.store.Initialize(ctx); err != nil {
		return err
	}
	if e.store.Ephemeral() {
		e.log.Warn().Msg("keystore key is session-only; credentials will not survive restart")
	}

	e.mu.Lock()
	e.initialized = true
	e.mu.Unlock()

	if loaded := e.loadSession(ctx); loaded {
		e.startMonitors()
	}
	return nil
}

// Close stops background monitoring, flushes the audit dispatcher, and
// releases the keystore.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.stopMonitors(true)
	if e.audit != nil {
		e.audit.Close()
	}
	if e.sqlite != nil {
		_ = e.sqlite.Close()
	}
}

// CreateSession builds the session aggregate from a freshly minted token
// triple, persists it encrypted, and starts background monitoring. A zero
// expiresAt is recovered from the access token's exp claim or the default
// TTL.
//
// CreateSession may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) CreateSession(ctx context.Context, identity []byte, accessToken, refreshToken string, expiresAt time.Time, provider session.Provider) (*session.Session, error) {
	e.mu.Lock()

	if !e.initialized {
		e.mu.Unlock()
		return nil, ErrEngineNotReady
	}

	now := e.now()
	if expiresAt.IsZero() {
		expiresAt = resolveExpiry(TokenSet{AccessToken: accessToken}, now, e.config.Session.DefaultTokenTTL)
	}
	if !expiresAt.After(now) {
		e.mu.Unlock()
		return nil, ErrInvalidExpiry
	}

	sess := &session.Session{
		SessionID:     uuid.NewString(),
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		Provider:      provider,
		User:          append([]byte(nil), identity...),
		Fingerprint:   e.fingerprint(),
		SchemaVersion: session.CurrentSchemaVersion,
		CreatedAt:     now.Unix(),
		ExpiresAt:     expiresAt.Unix(),
		LastRefreshAt: now.Unix(),
		LastActiveAt:  now.Unix(),
	}

	e.generation++
	sess.Generation = e.generation

	if err := e.persistLocked(ctx, sess); err != nil {
		e.generation--
		e.mu.Unlock()
		return nil, err
	}

	e.current = sess
	e.state = StateActive
	out := sess.Clone()
	e.mu.Unlock()

	e.stopMonitors(true)
	e.startMonitors()

	e.metricInc(MetricSessionCreated)
	e.auditEvent(ctx, AuditSessionCreated, out.SessionID, out.Provider.String(), true, "")
	e.log.Info().Str("session_id", out.SessionID).Str("provider", provider.String()).
		Time("expires_at", expiresAt).Msg("session created")

	return out, nil
}

// GetCurrentSession returns a copy of the in-memory session, or nil.
//
// GetCurrentSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GetCurrentSession() *session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// State reports the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// UpdateActivity stamps the last-activity time. Called on every observed
// user interaction signal from the host UI layer.
//
// UpdateActivity does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UpdateActivity() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.LastActiveAt = e.now().Unix()
	}
}

// UpdatePolicy replaces the session policy and restarts background
// monitoring under the new intervals.
//
// UpdatePolicy may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) UpdatePolicy(policy SessionPolicy) error {
	e.mu.Lock()
	candidate := e.config
	e.mu.Unlock()
	candidate.Session = policy
	if err := candidate.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.config.Session = policy
	restart := e.current != nil
	e.mu.Unlock()

	if restart {
		e.stopMonitors(true)
		e.startMonitors()
	}
	return nil
}

// ClearSession removes the persisted session, stops monitoring, and returns
// the engine to the unauthenticated state. Safe to call while a refresh is
// in flight; the refresh result is discarded.
//
// ClearSession may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) ClearSession(ctx context.Context) error {
	return e.clearSession(ctx, true)
}

func (e *Engine) clearSession(ctx context.Context, wait bool) error {
	// A clear triggered from inside a monitor tick must not wait on the
	// monitor goroutines, one of which is the caller.
	if fromMonitor(ctx) {
		wait = false
	}

	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return ErrEngineNotReady
	}

	had := e.current != nil
	var sessionID string
	if had {
		sessionID = e.current.SessionID
	}
	e.current = nil
	e.state = StateUnauthenticated
	e.generation++

	err := e.store.Remove(ctx, sessionService, sessionKey)
	e.mu.Unlock()

	e.stopMonitors(wait)

	if had {
		e.metricInc(MetricSessionCleared)
		e.auditEvent(ctx, AuditSessionCleared, sessionID, "", err == nil, errString(err))
		e.log.Info().Str("session_id", sessionID).Msg("session cleared")
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionPersistFailed, err)
	}
	return nil
}

// SecurityLevel reports the secure store's current at-rest protection and
// presence capability.
func (e *Engine) SecurityLevel(ctx context.Context) securestore.SecurityLevel {
	return e.store.GetSecurityLevel(ctx)
}

// Recovery exposes the error recovery orchestrator so I/O-performing
// callers can route their failures through it.
func (e *Engine) Recovery() *recovery.Orchestrator {
	return e.recovery
}

// Store exposes the secure credential store for caller-owned entries.
func (e *Engine) Store() *securestore.Store {
	return e.store
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

/*
====================================
INTERNAL HELPERS
====================================
*/

func (e *Engine) fingerprint() [32]byte {
	return internal.FingerprintDevice(e.device.DeviceID, e.device.Model, e.device.OSVersion, e.device.AppVersion)
}

// persistLocked encrypts and writes the session record. Caller holds e.mu.
// The write is presence-gated when the resume policy demands biometrics, so
// a cold-start load of the record challenges the user.
func (e *Engine) persistLocked(ctx context.Context, sess *session.Session) error {
	encoded, err := session.Encode(sess)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionPersistFailed, err)
	}

	opts := securestore.Options{
		RequirePresence: e.config.Session.RequireBiometricOnResume,
		Prompt:          resumePrompt,
	}
	if err := e.store.Set(ctx, sessionService, sessionKey, encoded, opts); err != nil {
		if errors.Is(err, securestore.ErrPresenceDenied) {
			e.metricInc(MetricPresenceDenied)
			e.auditEvent(ctx, AuditPresenceDenied, sess.SessionID, "", false, err.Error())
			return fmt.Errorf("%w: %v", ErrPresenceDenied, err)
		}
		return fmt.Errorf("%w: %v", ErrSessionPersistFailed, err)
	}
	return nil
}

// loadSession hydrates the in-memory aggregate from the keystore. An
// unreadable or corrupt record is deleted rather than surfaced.
func (e *Engine) loadSession(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		return true
	}

	opts := securestore.Options{Prompt: resumePrompt}
	raw, err := e.store.Get(ctx, sessionService, sessionKey, opts)
	if err != nil {
		if errors.Is(err, securestore.ErrNotFound) {
			return false
		}
		if errors.Is(err, securestore.ErrDecryptionFailed) {
			e.log.Warn().Msg("persisted session unreadable, discarding")
			_ = e.store.Remove(ctx, sessionService, sessionKey)
			return false
		}
		e.log.Warn().Err(err).Msg("session load failed")
		return false
	}

	sess, err := session.Decode(raw)
	if err != nil {
		e.log.Warn().Err(err).Msg("persisted session corrupt, discarding")
		_ = e.store.Remove(ctx, sessionService, sessionKey)
		return false
	}

	e.generation++
	sess.Generation = e.generation
	e.current = sess
	e.state = StateActive
	return true
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) auditEvent(ctx context.Context, eventType, sessionID, provider string, success bool, errMsg string) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		SessionID: sessionID,
		Provider:  provider,
		Success:   success,
		Error:     errMsg,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
