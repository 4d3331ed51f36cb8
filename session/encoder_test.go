package session

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func sampleSession() *Session {
	now := time.Now()
	var fp [32]byte
	for i := range fp {
		fp[i] = byte(i)
	}

	return &Session{
		SessionID:     "b3b46a1c-9e89-4c91-a175-2f6f5a3c1d10",
		AccessToken:   "at-opaque-value",
		RefreshToken:  "rt-opaque-value",
		Provider:      ProviderGoogle,
		User:          []byte(`{"sub":"user-1","email":"a@example.com"}`),
		Fingerprint:   fp,
		Generation:    7,
		CreatedAt:     now.Unix(),
		ExpiresAt:     now.Add(time.Hour).Unix(),
		LastRefreshAt: now.Unix(),
		LastActiveAt:  now.Unix(),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sampleSession()

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if out.SessionID != in.SessionID {
		t.Fatalf("session id mismatch: %q != %q", out.SessionID, in.SessionID)
	}
	if out.AccessToken != in.AccessToken || out.RefreshToken != in.RefreshToken {
		t.Fatal("token mismatch after round trip")
	}
	if out.Provider != ProviderGoogle {
		t.Fatalf("provider mismatch: %v", out.Provider)
	}
	if !bytes.Equal(out.User, in.User) {
		t.Fatal("identity payload mismatch after round trip")
	}
	if out.Fingerprint != in.Fingerprint {
		t.Fatal("fingerprint mismatch after round trip")
	}
	if out.Generation != 7 {
		t.Fatalf("generation mismatch: %d", out.Generation)
	}
	if out.ExpiresAt != in.ExpiresAt || out.CreatedAt != in.CreatedAt {
		t.Fatal("timestamp mismatch after round trip")
	}
}

func TestDecodeV1RecordDefaultsGeneration(t *testing.T) {
	in := sampleSession()

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	// Rewrite as a v1 blob: flip the version byte and splice out the
	// 8-byte generation field that sits before the four timestamps.
	v1 := make([]byte, 0, len(data)-8)
	v1 = append(v1, sessionFormatVersionV1)
	genOffset := len(data) - 4*8 - 8
	v1 = append(v1, data[1:genOffset]...)
	v1 = append(v1, data[genOffset+8:]...)

	out, err := Decode(v1)
	if err != nil {
		t.Fatalf("v1 decode failed: %v", err)
	}
	if out.Generation != 0 {
		t.Fatalf("expected zero generation for v1 record, got %d", out.Generation)
	}
	if out.SchemaVersion != sessionFormatVersionV1 {
		t.Fatalf("expected schema version 1, got %d", out.SchemaVersion)
	}
	if out.AccessToken != in.AccessToken {
		t.Fatal("v1 token mismatch")
	}
}

func TestDecodeTruncatedBlobFails(t *testing.T) {
	data, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	for _, cut := range []int{0, 1, 5, len(data) / 2, len(data) - 1} {
		if _, err := Decode(data[:cut]); !errors.Is(err, ErrCorruptRecord) {
			t.Fatalf("expected ErrCorruptRecord at cut %d, got %v", cut, err)
		}
	}
}

func TestDecodeUnknownVersionFails(t *testing.T) {
	data, err := Encode(sampleSession())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	data[0] = 99

	if _, err := Decode(data); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestEncodeRejectsOversizedToken(t *testing.T) {
	in := sampleSession()
	in.AccessToken = strings.Repeat("x", maxTokenLen)

	if _, err := Encode(in); err == nil {
		t.Fatal("expected oversized token to be rejected")
	}
}
