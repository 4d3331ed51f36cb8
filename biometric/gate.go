// Package biometric determines whether a local presence-verification sensor
// is available and enrolled, and performs presence challenges.
//
// # Architecture boundaries
//
// This package owns capability probing, result caching, and the mapping of
// platform bridge failures into the closed [FailureKind] set. It does NOT
// decide when a challenge is required — policy belongs to the Engine and the
// secure store's per-entry options.
//
// # What this package must NOT do
//
//   - Surface a failure kind outside the closed set.
//   - Retry a locked-out sensor; callers must treat [FailureLockedOut] as
//     terminal for the current process.
//   - Import sessionkit or any sibling package.
package biometric

import (
	"context"
	"errors"
	"sync"
)

// SensorKind identifies the presence-verification hardware class.
type SensorKind uint8

const (
	// KindNone is an exported constant or variable used by the presence gate.
	KindNone SensorKind = iota
	// KindFace is an exported constant or variable used by the presence gate.
	KindFace
	// KindFingerprint is an exported constant or variable used by the presence gate.
	KindFingerprint
)

// String describes the string operation and its observable behavior.
func (k SensorKind) String() string {
	switch k {
	case KindFace:
		return "face"
	case KindFingerprint:
		return "fingerprint"
	default:
		return "none"
	}
}

// UnavailableReason distinguishes why presence verification cannot run.
// Absence of hardware, absence of enrollment, and a missing device passcode
// are three different situations and callers surface them differently.
type UnavailableReason uint8

const (
	// ReasonNone is an exported constant or variable used by the presence gate.
	ReasonNone UnavailableReason = iota
	// ReasonNoHardware is an exported constant or variable used by the presence gate.
	ReasonNoHardware
	// ReasonNotEnrolled is an exported constant or variable used by the presence gate.
	ReasonNotEnrolled
	// ReasonNoPasscode is an exported constant or variable used by the presence gate.
	ReasonNoPasscode
)

// String describes the string operation and its observable behavior.
func (r UnavailableReason) String() string {
	switch r {
	case ReasonNoHardware:
		return "no presence hardware"
	case ReasonNotEnrolled:
		return "no biometric enrolled"
	case ReasonNoPasscode:
		return "no device passcode configured"
	default:
		return ""
	}
}

// Capability is the result of a sensor probe.
type Capability struct {
	Available bool
	Kind      SensorKind
	Enrolled  bool
	Reason    UnavailableReason
}

// Bridge failure sentinels. Platform sensor implementations return these
// (possibly wrapped) so the gate can classify outcomes; anything else maps
// to [FailureFailed].
var (
	// ErrUserCancelled is an exported constant or variable used by the presence gate.
	ErrUserCancelled = errors.New("challenge cancelled by user")
	// ErrNotEnrolled is an exported constant or variable used by the presence gate.
	ErrNotEnrolled = errors.New("no biometric enrolled")
	// ErrLockedOut is an exported constant or variable used by the presence gate.
	ErrLockedOut = errors.New("sensor locked out")
	// ErrHardwareUnavailable is an exported constant or variable used by the presence gate.
	ErrHardwareUnavailable = errors.New("presence hardware unavailable")
)

// Sensor is the platform bridge. Probe may itself run a probe
// authentication; Challenge blocks on user interaction with no implicit
// timeout, bounded only by ctx.
type Sensor interface {
	Probe(ctx context.Context) (Capability, error)
	Challenge(ctx context.Context, prompt string) error
}

// FailureKind is the closed classification of challenge failures.
type FailureKind uint8

const (
	// FailureNone is an exported constant or variable used by the presence gate.
	FailureNone FailureKind = iota
	// FailureUserCancelled is an exported constant or variable used by the presence gate.
	FailureUserCancelled
	// FailureNotEnrolled is an exported constant or variable used by the presence gate.
	FailureNotEnrolled
	// FailureLockedOut is an exported constant or variable used by the presence gate.
	FailureLockedOut
	// FailureHardwareUnavailable is an exported constant or variable used by the presence gate.
	FailureHardwareUnavailable
	// FailureFailed is an exported constant or variable used by the presence gate.
	FailureFailed
)

// String describes the string operation and its observable behavior.
func (f FailureKind) String() string {
	switch f {
	case FailureUserCancelled:
		return "user_cancelled"
	case FailureNotEnrolled:
		return "not_enrolled"
	case FailureLockedOut:
		return "locked_out"
	case FailureHardwareUnavailable:
		return "hardware_unavailable"
	case FailureFailed:
		return "failed"
	default:
		return "none"
	}
}

// ChallengeResult is the structured outcome of one presence challenge.
// Expected failures come back here, not as errors.
type ChallengeResult struct {
	Success bool
	Failure FailureKind
}

// Gate wraps a [Sensor] with capability caching and failure classification.
// Safe for concurrent use.
type Gate struct {
	sensor Sensor

	mu     sync.Mutex
	cached *Capability
}

// NewGate describes the newgate operation and its observable behavior.
func NewGate(sensor Sensor) *Gate {
	return &Gate{sensor: sensor}
}

// Capabilities probes the sensor on first use and caches the first
// successful classification for the process lifetime. A failed probe is not
// cached; the next call probes again.
func (g *Gate) Capabilities(ctx context.Context) Capability {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached != nil {
		return *g.cached
	}
	if g.sensor == nil {
		return Capability{Available: false, Kind: KindNone, Reason: ReasonNoHardware}
	}

	cap, err := g.sensor.Probe(ctx)
	if err != nil {
		return Capability{Available: false, Kind: KindNone, Reason: ReasonNoHardware}
	}

	g.cached = &cap
	return cap
}

// Authenticate performs a single presence challenge. Every bridge failure
// maps to exactly one [FailureKind]; a [FailureLockedOut] result MUST NOT be
// retried automatically by any caller.
func (g *Gate) Authenticate(ctx context.Context, reason string) ChallengeResult {
	if g.sensor == nil {
		return ChallengeResult{Failure: FailureHardwareUnavailable}
	}

	err := g.sensor.Challenge(ctx, reason)
	if err == nil {
		return ChallengeResult{Success: true}
	}

	switch {
	case errors.Is(err, ErrUserCancelled), errors.Is(err, context.Canceled):
		return ChallengeResult{Failure: FailureUserCancelled}
	case errors.Is(err, ErrNotEnrolled):
		return ChallengeResult{Failure: FailureNotEnrolled}
	case errors.Is(err, ErrLockedOut):
		return ChallengeResult{Failure: FailureLockedOut}
	case errors.Is(err, ErrHardwareUnavailable):
		return ChallengeResult{Failure: FailureHardwareUnavailable}
	default:
		return ChallengeResult{Failure: FailureFailed}
	}
}

// Challenge adapts the gate to the secure store's presence hook: nil on
// success, the classified failure as an error otherwise.
func (g *Gate) Challenge(ctx context.Context, prompt string) error {
	result := g.Authenticate(ctx, prompt)
	if result.Success {
		return nil
	}
	return errors.New(result.Failure.String())
}

// BiometricCapable reports whether an enrolled sensor is present. Used for
// security-level reporting only.
func (g *Gate) BiometricCapable(ctx context.Context) bool {
	cap := g.Capabilities(ctx)
	return cap.Available && cap.Enrolled
}
