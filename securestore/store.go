package securestore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Reserved keystore location for the persisted master key. The reserved
// service must never collide with caller services; Set/Get reject it.
const (
	keyService = "sessionkit.internal"
	keyEntryID = "master-key-v1"

	selfTestKey = "self-test"
)

const envelopeFlagPresence = 0x01

// Level grades the at-rest protection the store currently provides.
type Level uint8

const (
	// LevelLow is an exported constant or variable used by the secure store.
	LevelLow Level = iota
	// LevelMedium is an exported constant or variable used by the secure store.
	LevelMedium
	// LevelHigh is an exported constant or variable used by the secure store.
	LevelHigh
)

// String describes the string operation and its observable behavior.
func (l Level) String() string {
	switch l {
	case LevelHigh:
		return "high"
	case LevelMedium:
		return "medium"
	default:
		return "low"
	}
}

// SecurityLevel reports storage strength for caller-side UX decisions only.
// It never gates core correctness.
type SecurityLevel struct {
	Level            Level
	BiometricCapable bool
}

// Options control a single Set/Get/Remove call.
type Options struct {
	// RequirePresence demands a presence challenge before the operation.
	// Entries written with it set also demand presence on every read.
	RequirePresence bool
	// Prompt is shown to the user during the presence challenge.
	Prompt string
}

// PresenceChallenger performs a single presence challenge. The challenge may
// block on user interaction with no implicit timeout; callers bound it
// through ctx.
type PresenceChallenger interface {
	Challenge(ctx context.Context, prompt string) error
}

// CapabilityProber reports whether presence verification is available,
// for SecurityLevel only.
type CapabilityProber interface {
	BiometricCapable(ctx context.Context) bool
}

// Config defines a public type used by sessionkit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// DeviceID is the stable device identifier the master key is bound to.
	DeviceID string
	// MaxValueSize caps plaintext size per entry. Zero means 256 KiB.
	MaxValueSize int
}

const defaultMaxValueSize = 256 * 1024

// Store encrypts and persists opaque string payloads through a [Keystore].
// All methods except Initialize are safe for concurrent use after
// Initialize returns.
type Store struct {
	cfg      Config
	backend  Keystore
	presence PresenceChallenger
	prober   CapabilityProber

	aead        cipher.AEAD
	initialized bool
	ephemeral   bool

	now func() time.Time
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
func New(cfg Config, backend Keystore, presence PresenceChallenger, prober CapabilityProber) *Store {
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = defaultMaxValueSize
	}

	return &Store{
		cfg:      cfg,
		backend:  backend,
		presence: presence,
		prober:   prober,
		now:      time.Now,
	}
}

// Initialize derives or loads the 256-bit master key, then verifies the
// backend with a write/read/delete self-test. It must complete before any
// other method is called.
//
// Initialize may return an error when input validation, dependency calls, or security checks fail.
func (s *Store) Initialize(ctx context.Context) error {
	if s.backend == nil {
		return ErrKeystoreUnavailable
	}

	key, ephemeral, err := s.loadOrDeriveKey(ctx)
	if err != nil {
		return err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeystoreUnavailable, err)
	}
	s.aead = aead
	s.ephemeral = ephemeral
	s.initialized = true

	if err := s.selfTest(ctx); err != nil {
		s.initialized = false
		return err
	}

	return nil
}

func (s *Store) loadOrDeriveKey(ctx context.Context) ([]byte, bool, error) {
	existing, err := s.backend.Get(ctx, keyService, keyEntryID)
	if err == nil && len(existing) == chacha20poly1305.KeySize {
		return existing, false, nil
	}

	if err != nil && !errors.Is(err, ErrNotFound) {
		// Backend unreachable: session-only key, durability sacrificed.
		key, fallbackErr := s.fallbackKey()
		if fallbackErr != nil {
			return nil, false, ErrKeystoreUnavailable
		}
		return key, true, nil
	}

	// First run (or a truncated key record, which is unreadable anyway).
	key, err := s.freshKey()
	if err != nil {
		key, fallbackErr := s.fallbackKey()
		if fallbackErr != nil {
			return nil, false, ErrKeystoreUnavailable
		}
		return key, true, nil
	}

	if err := s.backend.Set(ctx, keyService, keyEntryID, key); err != nil {
		key, fallbackErr := s.fallbackKey()
		if fallbackErr != nil {
			return nil, false, ErrKeystoreUnavailable
		}
		return key, true, nil
	}

	return key, false, nil
}

func (s *Store) freshKey() ([]byte, error) {
	entropy := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, entropy); err != nil {
		return nil, err
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(s.now().UnixNano()))

	seed := sha256.New()
	seed.Write([]byte(s.cfg.DeviceID))
	seed.Write(ts[:])
	seed.Write(entropy)

	return expandKey(seed.Sum(nil))
}

func (s *Store) fallbackKey() ([]byte, error) {
	if s.cfg.DeviceID == "" {
		return nil, ErrKeystoreUnavailable
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(s.now().UnixNano()))

	seed := sha256.New()
	seed.Write([]byte(s.cfg.DeviceID))
	seed.Write(ts[:])

	return expandKey(seed.Sum(nil))
}

func expandKey(seed []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, seed, nil, []byte("sessionkit keystore v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Store) selfTest(ctx context.Context) error {
	probe := []byte("self-test-" + s.now().Format(time.RFC3339Nano))

	if err := s.Set(ctx, keyService, selfTestKey, probe, Options{}); err != nil {
		return fmt.Errorf("%w: write: %v", ErrKeystoreSelfTestFailed, err)
	}

	got, err := s.Get(ctx, keyService, selfTestKey, Options{})
	if err != nil {
		return fmt.Errorf("%w: read: %v", ErrKeystoreSelfTestFailed, err)
	}
	if string(got) != string(probe) {
		return ErrKeystoreSelfTestFailed
	}

	if err := s.Remove(ctx, keyService, selfTestKey); err != nil {
		return fmt.Errorf("%w: delete: %v", ErrKeystoreSelfTestFailed, err)
	}

	return nil
}

// Set encrypts value and writes it under (service, key). Oversized values
// fail with [ErrStoreFailed], never a panic.
//
// Set may return an error when input validation, dependency calls, or security checks fail.
func (s *Store) Set(ctx context.Context, service, key string, value []byte, opts Options) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if err := s.guardLocation(service, key); err != nil {
		return err
	}
	if len(value) > s.cfg.MaxValueSize {
		return fmt.Errorf("%w: value exceeds %d bytes", ErrStoreFailed, s.cfg.MaxValueSize)
	}

	if opts.RequirePresence {
		if err := s.challenge(ctx, opts.Prompt); err != nil {
			return err
		}
	}

	sealed, err := s.seal(service, key, value, opts.RequirePresence)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	if err := s.backend.Set(ctx, service, key, sealed); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return nil
}

// Get reads and decrypts the entry under (service, key). An unreadable
// record (wrong or rotated key, corruption) yields [ErrDecryptionFailed];
// the raw ciphertext is never surfaced as a value.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
func (s *Store) Get(ctx context.Context, service, key string, opts Options) ([]byte, error) {
	if !s.initialized {
		return nil, ErrNotInitialized
	}

	sealed, err := s.backend.Get(ctx, service, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	if len(sealed) < 1+chacha20poly1305.NonceSizeX {
		return nil, ErrDecryptionFailed
	}

	flags := sealed[0]
	if opts.RequirePresence || flags&envelopeFlagPresence != 0 {
		if err := s.challenge(ctx, opts.Prompt); err != nil {
			return nil, err
		}
	}

	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[1+chacha20poly1305.NonceSizeX:]

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, aad(service, key, flags))
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// Remove deletes one entry; removing a missing entry succeeds.
//
// Remove may return an error when input validation, dependency calls, or security checks fail.
func (s *Store) Remove(ctx context.Context, service, key string) error {
	if !s.initialized {
		return ErrNotInitialized
	}

	if err := s.backend.Delete(ctx, service, key); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return nil
}

// Clear deletes every entry under a service.
//
// Clear may return an error when input validation, dependency calls, or security checks fail.
func (s *Store) Clear(ctx context.Context, service string) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if service == keyService {
		return fmt.Errorf("%w: reserved service", ErrStoreFailed)
	}

	if err := s.backend.DeleteAll(ctx, service); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return nil
}

// GetSecurityLevel reports current at-rest protection and presence
// capability. Low means the key is session-only; high requires a durable
// key and a reachable backend.
func (s *Store) GetSecurityLevel(ctx context.Context) SecurityLevel {
	biometric := s.prober != nil && s.prober.BiometricCapable(ctx)

	if !s.initialized || s.ephemeral {
		return SecurityLevel{Level: LevelLow, BiometricCapable: biometric}
	}
	if s.backend.Ping(ctx) != nil {
		return SecurityLevel{Level: LevelMedium, BiometricCapable: biometric}
	}
	if biometric {
		return SecurityLevel{Level: LevelHigh, BiometricCapable: true}
	}
	return SecurityLevel{Level: LevelMedium, BiometricCapable: false}
}

// Ephemeral reports whether the store runs on a session-only key.
func (s *Store) Ephemeral() bool {
	return s.ephemeral
}

func (s *Store) challenge(ctx context.Context, prompt string) error {
	if s.presence == nil {
		return fmt.Errorf("%w: no presence challenger configured", ErrPresenceDenied)
	}
	if err := s.presence.Challenge(ctx, prompt); err != nil {
		return fmt.Errorf("%w: %v", ErrPresenceDenied, err)
	}
	return nil
}

func (s *Store) guardLocation(service, key string) error {
	if service == keyService && key != selfTestKey {
		return fmt.Errorf("%w: reserved service", ErrStoreFailed)
	}
	if service == "" || key == "" {
		return fmt.Errorf("%w: empty service or key", ErrStoreFailed)
	}
	return nil
}

func (s *Store) seal(service, key string, plaintext []byte, presence bool) ([]byte, error) {
	var flags byte
	if presence {
		flags |= envelopeFlagPresence
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, 1+len(nonce)+len(plaintext)+s.aead.Overhead())
	sealed = append(sealed, flags)
	sealed = append(sealed, nonce...)
	sealed = s.aead.Seal(sealed, nonce, plaintext, aad(service, key, flags))

	return sealed, nil
}

// aad binds each record to its location and envelope flags so a ciphertext
// copied between keys fails authentication instead of decrypting in the
// wrong slot.
func aad(service, key string, flags byte) []byte {
	out := make([]byte, 0, len(service)+len(key)+2)
	out = append(out, service...)
	out = append(out, 0)
	out = append(out, key...)
	out = append(out, flags)
	return out
}
