// Package sessionkit provides the session and secure-credential core for
// client applications: encrypted at-rest credential storage bound to a
// device-derived key, authenticated-session lifecycle tracking (creation,
// refresh, timeout, invalidation), presence gating for sensitive operations,
// and bounded error recovery.
//
// The package is designed for concurrent callers: Engine methods are safe to
// call from multiple goroutines after initialization through [Builder.Build].
// Session mutation is serialized internally; background monitors are owned by
// the Engine and torn down by [Engine.ClearSession] and [Engine.Close].
//
// # Architecture boundaries
//
// sessionkit is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (ValidationResult, MetricsSnapshot, AuditEvent, etc.).
// Credential encryption lives in securestore, presence verification in
// biometric, failure classification and recovery in recovery, and the session
// aggregate with its wire codec in session.
//
// # What this package must NOT do
//
//   - Render UI, validate form input, or interpret the identity payload it
//     stores; those belong to the embedding application.
//   - Speak any specific identity provider's wire protocol. Callers supply
//     an [IdentityProvider] implementation.
//   - Talk to platform secure enclaves directly. Callers supply a
//     [securestore.Keystore] and a [biometric.Sensor] bridge.
//
// # Failure contract
//
// Expected failures come back as structured results (ValidationResult,
// recovery.Result, biometric.ChallengeResult) or sentinel errors; panics are
// reserved for programmer errors. Transient failures are retried inside the
// recovery orchestrator and surface to the user only when retries are
// exhausted.
package sessionkit
