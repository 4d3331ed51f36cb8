package sessionkit

import (
	"context"
	"fmt"

	"github.com/halcyonlabs/sessionkit/biometric"
	"github.com/halcyonlabs/sessionkit/recovery"
)

// Validation failure reasons surfaced in [ValidationResult.Reason].
const (
	ReasonNoSession           = "no session"
	ReasonExpired             = "access token expired"
	ReasonTimedOut            = "session exceeded maximum lifetime"
	ReasonInactive            = "session exceeded inactivity limit"
	ReasonFingerprintMismatch = "device fingerprint mismatch"
	ReasonRemoteRejected      = "remote validation failed"
)

// ValidateSession runs the ordered validity checks against the in-memory
// session. The first failing check wins; a valid session additionally
// reports NeedsRefresh when the token is inside the refresh threshold.
//
// ValidateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateSession(ctx context.Context) ValidationResult {
	e.mu.Lock()
	sess := e.current.Clone()
	policy := e.config.Session
	fp := e.fingerprint()
	e.mu.Unlock()

	if sess == nil {
		return ValidationResult{ShouldReauthenticate: true, Reason: ReasonNoSession, Err: ErrNoSession}
	}

	now := e.now()

	if sess.ExpiresIn(now) <= 0 {
		return ValidationResult{NeedsRefresh: true, Reason: ReasonExpired, Err: ErrSessionExpired}
	}

	if policy.SessionTimeoutMinutes > 0 && sess.Age(now).Minutes() >= float64(policy.SessionTimeoutMinutes) {
		e.metricInc(MetricValidationFailure)
		return ValidationResult{ShouldReauthenticate: true, Reason: ReasonTimedOut, Err: ErrSessionTimedOut}
	}

	if policy.MaxInactiveMinutes > 0 && sess.Idle(now).Minutes() >= float64(policy.MaxInactiveMinutes) {
		e.metricInc(MetricValidationFailure)
		return ValidationResult{ShouldReauthenticate: true, Reason: ReasonInactive, Err: ErrSessionInactive}
	}

	if policy.DeviceFingerprintValidation && sess.Fingerprint != fp {
		e.metricInc(MetricFingerprintMismatch)
		e.auditEvent(ctx, AuditSessionInvalidated, sess.SessionID, "", false, ErrFingerprintMismatch.Error())
		return ValidationResult{ShouldReauthenticate: true, Reason: ReasonFingerprintMismatch, Err: ErrFingerprintMismatch}
	}

	if e.provider != nil {
		if _, err := e.provider.Validate(ctx, sess.AccessToken); err != nil {
			e.log.Debug().Err(err).Msg("remote token validation failed")
			return ValidationResult{
				NeedsRefresh: true,
				Reason:       ReasonRemoteRejected,
				Err:          fmt.Errorf("%w: %v", ErrProviderRejected, err),
			}
		}
	}

	needsRefresh := policy.RefreshThresholdMinutes > 0 &&
		sess.ExpiresIn(now).Minutes() <= float64(policy.RefreshThresholdMinutes)
	return ValidationResult{IsValid: true, NeedsRefresh: needsRefresh}
}

// IsAuthenticated loads the persisted session if none is in memory, then
// reports whether validation passes.
//
// IsAuthenticated does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) IsAuthenticated(ctx context.Context) bool {
	e.loadSession(ctx)
	return e.ValidateSession(ctx).IsValid
}

// RefreshSessionIfNeeded validates the current session and refreshes it
// when the validation asks for one. Returns the final validity.
//
// RefreshSessionIfNeeded does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RefreshSessionIfNeeded(ctx context.Context) bool {
	result := e.ValidateSession(ctx)
	e.mu.Lock()
	autoRefresh := e.config.Session.AutoRefreshEnabled
	e.mu.Unlock()
	if result.NeedsRefresh && autoRefresh {
		return e.RefreshSession(ctx)
	}
	return result.IsValid
}

// RefreshSession exchanges the refresh token for a new triple. On provider
// failure the session is cleared and no partial state is retained. A
// refresh that completes after ClearSession is discarded via the generation
// counter rather than resurrecting the cleared session.
//
// RefreshSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RefreshSession(ctx context.Context) bool {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return false
	}
	gen := e.current.Generation
	refreshToken := e.current.RefreshToken
	sessionID := e.current.SessionID
	e.state = StateRefreshing
	e.mu.Unlock()

	if e.provider == nil {
		e.log.Error().Msg("refresh requested without an identity provider")
		_ = e.ClearSession(ctx)
		return false
	}

	start := e.now()
	tokens, err := e.provider.Refresh(ctx, refreshToken)
	e.metrics.Observe(MetricRefreshLatency, e.now().Sub(start))

	if err != nil {
		err = fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		e.metricInc(MetricRefreshFailure)
		e.auditEvent(ctx, AuditSessionRefreshed, sessionID, "", false, err.Error())
		e.log.Warn().Err(err).Str("session_id", sessionID).Msg("refresh failed, clearing session")
		_ = e.ClearSession(ctx)
		e.dispatchRecovery(ctx, recovery.Tag(err, recovery.KindAuthExpired), "refresh_session")
		return false
	}

	e.mu.Lock()
	if e.current == nil || e.current.Generation != gen {
		e.mu.Unlock()
		e.metricInc(MetricStaleRefreshDiscarded)
		e.log.Info().Str("session_id", sessionID).Msg("stale refresh result discarded")
		return false
	}

	now := e.now()
	e.current.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		e.current.RefreshToken = tokens.RefreshToken
	}
	e.current.ExpiresAt = resolveExpiry(tokens, now, e.config.Session.DefaultTokenTTL).Unix()
	e.current.LastRefreshAt = now.Unix()
	e.current.LastActiveAt = now.Unix()
	e.state = StateActive

	err = e.persistLocked(ctx, e.current)
	e.mu.Unlock()

	if err != nil {
		e.log.Warn().Err(err).Str("session_id", sessionID).Msg("refreshed session not persisted")
	}
	// A round trip to the provider just succeeded, so any network retry
	// budget the orchestrator was holding open can be released.
	e.recovery.Resolve(recovery.KindNetworkTimeout)
	e.metricInc(MetricRefreshSuccess)
	e.auditEvent(ctx, AuditSessionRefreshed, sessionID, "", true, "")
	return true
}

// HandleAppResume stamps activity, runs the biometric gate when the resume
// policy demands it, and then refreshes the session if needed. A failed
// challenge clears the session; a locked-out sensor is never retried.
//
// HandleAppResume does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) HandleAppResume(ctx context.Context) bool {
	e.UpdateActivity()
	e.loadSession(ctx)

	e.mu.Lock()
	requireBiometric := e.config.Session.RequireBiometricOnResume
	var sessionID string
	if e.current != nil {
		sessionID = e.current.SessionID
	}
	e.mu.Unlock()

	if sessionID == "" {
		return false
	}

	if requireBiometric {
		result := e.gate.Authenticate(ctx, resumePrompt)
		if !result.Success {
			e.metricInc(MetricResumeDenied)
			e.auditEvent(ctx, AuditResumeDenied, sessionID, "", false, result.Failure.String())
			e.log.Warn().Str("session_id", sessionID).Str("failure", result.Failure.String()).
				Msg("resume challenge failed, clearing session")
			_ = e.ClearSession(ctx)
			return false
		}
	}

	return e.RefreshSessionIfNeeded(ctx)
}

// HandleLifecycleSignal routes a host app foreground/background transition:
// foreground runs the resume path, background stamps activity and persists
// the aggregate.
//
// HandleLifecycleSignal does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) HandleLifecycleSignal(ctx context.Context, sig LifecycleSignal) {
	switch sig {
	case SignalForeground:
		e.HandleAppResume(ctx)
	case SignalBackground:
		e.UpdateActivity()
		e.mu.Lock()
		if e.current != nil {
			if err := e.persistLocked(ctx, e.current); err != nil {
				e.log.Warn().Err(err).Msg("background persist failed")
			}
		}
		e.mu.Unlock()
	}
}

// dispatchRecovery routes an operational failure through the orchestrator
// and mirrors its outcome into audit and metrics.
func (e *Engine) dispatchRecovery(ctx context.Context, err error, operation string) recovery.Result {
	e.metricInc(MetricRecoveryDispatched)
	result := e.recovery.HandleError(ctx, err, operation)
	e.auditEvent(ctx, AuditRecoveryDispatched, "", "", result.Success, errString(err))
	if result.Strategy == recovery.StrategyFallback {
		e.metricInc(MetricRecoveryFallback)
		e.auditEvent(ctx, AuditFallbackEngaged, "", "", false, errString(err))
	}
	return result
}

// BiometricCapabilities reports the cached sensor classification.
func (e *Engine) BiometricCapabilities(ctx context.Context) biometric.Capability {
	return e.gate.Capabilities(ctx)
}
