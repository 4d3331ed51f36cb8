// Package recovery classifies operational failures into a closed taxonomy
// and drives bounded, idempotent recovery attempts.
//
// # Architecture boundaries
//
// The orchestrator never performs domain I/O itself; side effects (store
// probes, token resets, cache purges) are injected via [Hooks]. Collaborators
// tag their failures with [Tag] at the point of failure; message keyword
// matching exists only as a last resort for untagged third-party errors.
//
// # What this package must NOT do
//
//   - Return a kind outside the closed [ErrorKind] set.
//   - Panic from any recovery branch; every path yields a [Result].
//   - Run two recoveries for the same kind concurrently.
package recovery

import (
	"errors"
	"strings"
)

// ErrorKind is the closed classification of operational failures.
type ErrorKind uint8

const (
	// KindUnknown is an exported constant or variable used by the recovery orchestrator.
	KindUnknown ErrorKind = iota
	// KindLocalStoreUnavailable is an exported constant or variable used by the recovery orchestrator.
	KindLocalStoreUnavailable
	// KindNetworkTimeout is an exported constant or variable used by the recovery orchestrator.
	KindNetworkTimeout
	// KindAuthExpired is an exported constant or variable used by the recovery orchestrator.
	KindAuthExpired
	// KindStorageFull is an exported constant or variable used by the recovery orchestrator.
	KindStorageFull
	// KindMemoryPressure is an exported constant or variable used by the recovery orchestrator.
	KindMemoryPressure
	// KindSyncConflict is an exported constant or variable used by the recovery orchestrator.
	KindSyncConflict
	// KindPlatformBridgeFault is an exported constant or variable used by the recovery orchestrator.
	KindPlatformBridgeFault
)

// String describes the string operation and its observable behavior.
func (k ErrorKind) String() string {
	switch k {
	case KindLocalStoreUnavailable:
		return "local_store_unavailable"
	case KindNetworkTimeout:
		return "network_timeout"
	case KindAuthExpired:
		return "auth_expired"
	case KindStorageFull:
		return "storage_full"
	case KindMemoryPressure:
		return "memory_pressure"
	case KindSyncConflict:
		return "sync_conflict"
	case KindPlatformBridgeFault:
		return "platform_bridge_fault"
	default:
		return "unknown"
	}
}

// Strategy names the recovery approach chosen for one failure.
type Strategy uint8

const (
	// StrategyIgnore is an exported constant or variable used by the recovery orchestrator.
	StrategyIgnore Strategy = iota
	// StrategyRetry is an exported constant or variable used by the recovery orchestrator.
	StrategyRetry
	// StrategyReinitialize is an exported constant or variable used by the recovery orchestrator.
	StrategyReinitialize
	// StrategyFallback is an exported constant or variable used by the recovery orchestrator.
	StrategyFallback
	// StrategyReset is an exported constant or variable used by the recovery orchestrator.
	StrategyReset
)

// String describes the string operation and its observable behavior.
func (s Strategy) String() string {
	switch s {
	case StrategyRetry:
		return "retry"
	case StrategyReinitialize:
		return "reinitialize"
	case StrategyFallback:
		return "fallback"
	case StrategyReset:
		return "reset"
	default:
		return "ignore"
	}
}

// Kinder is implemented by error types that know their own [ErrorKind].
// Classification of a Kinder is exact; the keyword matcher is never
// consulted.
type Kinder interface {
	ErrorKind() ErrorKind
}

// taggedError carries an [ErrorKind] assigned at the failure site. It wraps
// the underlying cause so errors.Is/As keep working through it.
type taggedError struct {
	kind ErrorKind
	err  error
}

func (t *taggedError) Error() string { return t.err.Error() }
func (t *taggedError) Unwrap() error { return t.err }

func (t *taggedError) ErrorKind() ErrorKind { return t.kind }

// Tag attaches an [ErrorKind] to err at the failure site. Classification of
// a tagged error is exact; the keyword matcher is never consulted.
func Tag(err error, kind ErrorKind) error {
	if err == nil {
		return nil
	}
	return &taggedError{kind: kind, err: err}
}

// matchers is consulted in order; the first keyword hit wins. Ordering
// matters: "storage full" must be checked before the generic storage terms.
var matchers = []struct {
	kind  ErrorKind
	terms []string
}{
	{KindStorageFull, []string{"storage full", "disk full", "no space", "quota exceeded"}},
	{KindLocalStoreUnavailable, []string{"storage", "keystore", "database", "sqlite", "store unavailable"}},
	{KindNetworkTimeout, []string{"timeout", "timed out", "connection refused", "network", "unreachable", "dns"}},
	{KindAuthExpired, []string{"token expired", "unauthorized", "401", "auth", "credential"}},
	{KindMemoryPressure, []string{"out of memory", "memory pressure", "oom"}},
	{KindSyncConflict, []string{"conflict", "version mismatch", "stale"}},
	{KindPlatformBridgeFault, []string{"bridge", "platform channel", "native"}},
}

// Classify resolves err to an [ErrorKind]. A [Kinder] anywhere in the chain
// (including errors tagged with [Tag]) takes precedence; otherwise the
// message is matched against the ordered keyword table, falling through to
// [KindUnknown].
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var kinder Kinder
	if errors.As(err, &kinder) {
		return kinder.ErrorKind()
	}

	msg := strings.ToLower(err.Error())
	for _, m := range matchers {
		for _, term := range m.terms {
			if strings.Contains(msg, term) {
				return m.kind
			}
		}
	}
	return KindUnknown
}
