// Package session defines the authenticated-session aggregate and its compact
// binary wire codec used for encrypted persistence.
//
// # Binary encoding
//
// Sessions persist as a versioned binary blob (schema v1–v2) with forward
// migration on read. The encoder is append-only: new versions add fields but
// never reinterpret old ones. The blob is always encrypted by the secure
// store before it touches any backend; this package never sees ciphertext.
//
// # Architecture boundaries
//
// This package owns the [Session] model and [Encode]/[Decode]. It does NOT
// validate expiry, talk to identity providers, or enforce lifecycle policy —
// those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import sessionkit or any sibling package (no upward imports).
//   - Interpret the opaque identity payload.
//   - Perform I/O of any kind.
package session
