package securestore

import (
	"context"
	"errors"
	"testing"
)

type countingChallenger struct {
	calls int
	deny  bool
}

func (c *countingChallenger) Challenge(context.Context, string) error {
	c.calls++
	if c.deny {
		return errors.New("user cancelled")
	}
	return nil
}

// reservedFailBackend simulates a reachable data store whose hardware-backed
// key facility is down: operations against the reserved key entry fail,
// everything else works.
type reservedFailBackend struct {
	*MemoryKeystore
}

func (b *reservedFailBackend) Get(ctx context.Context, service, key string) ([]byte, error) {
	if service == keyService && key == keyEntryID {
		return nil, errors.New("secure element unreachable")
	}
	return b.MemoryKeystore.Get(ctx, service, key)
}

func (b *reservedFailBackend) Set(ctx context.Context, service, key string, value []byte) error {
	if service == keyService && key == keyEntryID {
		return errors.New("secure element unreachable")
	}
	return b.MemoryKeystore.Set(ctx, service, key, value)
}

// corruptingBackend flips a ciphertext byte on every write.
type corruptingBackend struct {
	*MemoryKeystore
}

func (b *corruptingBackend) Set(ctx context.Context, service, key string, value []byte) error {
	if service == keyService && key == selfTestKey {
		mutated := make([]byte, len(value))
		copy(mutated, value)
		mutated[len(mutated)-1] ^= 0xFF
		return b.MemoryKeystore.Set(ctx, service, key, mutated)
	}
	return b.MemoryKeystore.Set(ctx, service, key, value)
}

func newTestStore(t *testing.T, backend Keystore, presence PresenceChallenger) *Store {
	t.Helper()

	store := New(Config{DeviceID: "device-0001"}, backend, presence, nil)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	return store
}

func TestSetGetRoundTrip(t *testing.T) {
	store := newTestStore(t, NewMemoryKeystore(), nil)
	ctx := context.Background()

	if err := store.Set(ctx, "auth", "refresh-token", []byte("rt-secret"), Options{}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, err := store.Get(ctx, "auth", "refresh-token", Options{})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != "rt-secret" {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestGetMissingEntryReturnsNotFound(t *testing.T) {
	store := newTestStore(t, NewMemoryKeystore(), nil)

	if _, err := store.Get(context.Background(), "auth", "nope", Options{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKeyPersistsAcrossInstances(t *testing.T) {
	backend := NewMemoryKeystore()
	ctx := context.Background()

	first := newTestStore(t, backend, nil)
	if err := first.Set(ctx, "auth", "session", []byte("blob"), Options{}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	second := newTestStore(t, backend, nil)
	got, err := second.Get(ctx, "auth", "session", Options{})
	if err != nil {
		t.Fatalf("expected second instance to decrypt with persisted key, got %v", err)
	}
	if string(got) != "blob" {
		t.Fatalf("cross-instance mismatch: %q", got)
	}
}

func TestCorruptedCiphertextReturnsDecryptionFailed(t *testing.T) {
	backend := NewMemoryKeystore()
	store := newTestStore(t, backend, nil)
	ctx := context.Background()

	if err := store.Set(ctx, "auth", "session", []byte("blob"), Options{}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	sealed, err := backend.Get(ctx, "auth", "session")
	if err != nil {
		t.Fatalf("backend get failed: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF
	if err := backend.Set(ctx, "auth", "session", sealed); err != nil {
		t.Fatalf("backend set failed: %v", err)
	}

	if _, err := store.Get(ctx, "auth", "session", Options{}); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestCiphertextBoundToLocation(t *testing.T) {
	backend := NewMemoryKeystore()
	store := newTestStore(t, backend, nil)
	ctx := context.Background()

	if err := store.Set(ctx, "auth", "alpha", []byte("secret-a"), Options{}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	sealed, err := backend.Get(ctx, "auth", "alpha")
	if err != nil {
		t.Fatalf("backend get failed: %v", err)
	}
	if err := backend.Set(ctx, "auth", "beta", sealed); err != nil {
		t.Fatalf("backend set failed: %v", err)
	}

	if _, err := store.Get(ctx, "auth", "beta", Options{}); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected relocated ciphertext to fail authentication, got %v", err)
	}
}

func TestOversizedValueReturnsStoreFailed(t *testing.T) {
	store := New(Config{DeviceID: "device-0001", MaxValueSize: 8}, NewMemoryKeystore(), nil, nil)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	err := store.Set(context.Background(), "auth", "big", []byte("far-too-large"), Options{})
	if !errors.Is(err, ErrStoreFailed) {
		t.Fatalf("expected ErrStoreFailed, got %v", err)
	}
}

func TestPresenceRequiredOnWriteAndReadBack(t *testing.T) {
	challenger := &countingChallenger{}
	store := newTestStore(t, NewMemoryKeystore(), challenger)
	ctx := context.Background()

	opts := Options{RequirePresence: true, Prompt: "unlock credentials"}
	if err := store.Set(ctx, "auth", "guarded", []byte("v"), opts); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if challenger.calls != 1 {
		t.Fatalf("expected 1 challenge on write, got %d", challenger.calls)
	}

	// Read-back must demand presence even when the caller does not ask.
	if _, err := store.Get(ctx, "auth", "guarded", Options{}); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if challenger.calls != 2 {
		t.Fatalf("expected challenge on read-back, got %d calls", challenger.calls)
	}

	challenger.deny = true
	if _, err := store.Get(ctx, "auth", "guarded", Options{}); !errors.Is(err, ErrPresenceDenied) {
		t.Fatalf("expected ErrPresenceDenied, got %v", err)
	}
}

func TestFallbackKeyWhenKeyFacilityUnreachable(t *testing.T) {
	backend := &reservedFailBackend{MemoryKeystore: NewMemoryKeystore()}
	store := newTestStore(t, backend, nil)
	ctx := context.Background()

	if !store.Ephemeral() {
		t.Fatal("expected session-only key when key facility is unreachable")
	}
	if level := store.GetSecurityLevel(ctx); level.Level != LevelLow {
		t.Fatalf("expected low security level, got %v", level.Level)
	}

	// Correctness is retained: round trips still work within the session.
	if err := store.Set(ctx, "auth", "k", []byte("v"), Options{}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := store.Get(ctx, "auth", "k", Options{})
	if err != nil || string(got) != "v" {
		t.Fatalf("fallback round trip failed: %q, %v", got, err)
	}
}

func TestFallbackWithoutDeviceIDFailsUnavailable(t *testing.T) {
	backend := &reservedFailBackend{MemoryKeystore: NewMemoryKeystore()}
	store := New(Config{}, backend, nil, nil)

	if err := store.Initialize(context.Background()); !errors.Is(err, ErrKeystoreUnavailable) {
		t.Fatalf("expected ErrKeystoreUnavailable, got %v", err)
	}
}

func TestSelfTestDetectsCorruptingBackend(t *testing.T) {
	backend := &corruptingBackend{MemoryKeystore: NewMemoryKeystore()}
	store := New(Config{DeviceID: "device-0001"}, backend, nil, nil)

	if err := store.Initialize(context.Background()); !errors.Is(err, ErrKeystoreSelfTestFailed) {
		t.Fatalf("expected ErrKeystoreSelfTestFailed, got %v", err)
	}
}

func TestRemoveAndClearAreIdempotent(t *testing.T) {
	store := newTestStore(t, NewMemoryKeystore(), nil)
	ctx := context.Background()

	if err := store.Remove(ctx, "auth", "never-written"); err != nil {
		t.Fatalf("remove of missing entry must succeed, got %v", err)
	}
	if err := store.Clear(ctx, "auth"); err != nil {
		t.Fatalf("clear of empty service must succeed, got %v", err)
	}
}

func TestCallBeforeInitializeFails(t *testing.T) {
	store := New(Config{DeviceID: "device-0001"}, NewMemoryKeystore(), nil, nil)

	if _, err := store.Get(context.Background(), "auth", "k", Options{}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
