// Package securestore implements encrypted key/value persistence bound to a
// device-derived key.
//
// # Components
//
//   - [Keystore] — bridge interface over the platform's secure storage
//     facility, with Redis, SQLite, and in-memory implementations.
//   - [Store] — the encryption layer: key derivation, XChaCha20-Poly1305
//     sealing, presence gating, and the initialize-time self-test.
//
// # Key lifecycle
//
// Initialize loads the 256-bit master key from a reserved keystore entry.
// On first run the key is derived from the device identifier, the current
// time, and 32 bytes of CSPRNG output, then persisted. When the backend is
// unreachable a session-only key is derived instead: durability is
// sacrificed, correctness is not, and SecurityLevel reports low.
//
// # What this package must NOT do
//
//   - Return raw ciphertext when decryption fails ([ErrDecryptionFailed]
//     is the only outcome for an unreadable record).
//   - Interpret payload schemas; values are opaque bytes.
//   - Decide when presence is required; callers opt in per entry.
package securestore
