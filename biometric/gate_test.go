package biometric

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type scriptedSensor struct {
	probes       int
	probeCap     Capability
	probeErr     error
	challengeErr error
}

func (s *scriptedSensor) Probe(ctx context.Context) (Capability, error) {
	s.probes++
	if s.probeErr != nil {
		return Capability{}, s.probeErr
	}
	return s.probeCap, nil
}

func (s *scriptedSensor) Challenge(ctx context.Context, prompt string) error {
	return s.challengeErr
}

func TestCapabilitiesCachedAfterFirstSuccess(t *testing.T) {
	sensor := &scriptedSensor{
		probeCap: Capability{Available: true, Kind: KindFace, Enrolled: true},
	}
	gate := NewGate(sensor)
	ctx := context.Background()

	first := gate.Capabilities(ctx)
	if !first.Available || first.Kind != KindFace {
		t.Fatalf("unexpected capability: %+v", first)
	}

	// Mutate the sensor; the cached classification must win.
	sensor.probeCap = Capability{Available: false, Reason: ReasonNoHardware}
	second := gate.Capabilities(ctx)
	if !second.Available {
		t.Fatalf("cached capability lost: %+v", second)
	}
	if sensor.probes != 1 {
		t.Fatalf("expected a single probe, got %d", sensor.probes)
	}
}

func TestCapabilitiesFailedProbeNotCached(t *testing.T) {
	sensor := &scriptedSensor{probeErr: errors.New("bridge down")}
	gate := NewGate(sensor)
	ctx := context.Background()

	got := gate.Capabilities(ctx)
	if got.Available || got.Reason != ReasonNoHardware {
		t.Fatalf("unexpected capability on failed probe: %+v", got)
	}

	// A later probe that succeeds must be observed (no negative caching).
	sensor.probeErr = nil
	sensor.probeCap = Capability{Available: true, Kind: KindFingerprint, Enrolled: true}
	got = gate.Capabilities(ctx)
	if !got.Available || got.Kind != KindFingerprint {
		t.Fatalf("recovered probe not observed: %+v", got)
	}
	if sensor.probes != 2 {
		t.Fatalf("expected two probes, got %d", sensor.probes)
	}
}

func TestAuthenticateFailureClassification(t *testing.T) {
	cases := []struct {
		err  error
		want FailureKind
	}{
		{nil, FailureNone},
		{ErrUserCancelled, FailureUserCancelled},
		{fmt.Errorf("bridge: %w", ErrUserCancelled), FailureUserCancelled},
		{context.Canceled, FailureUserCancelled},
		{ErrNotEnrolled, FailureNotEnrolled},
		{ErrLockedOut, FailureLockedOut},
		{ErrHardwareUnavailable, FailureHardwareUnavailable},
		{errors.New("something opaque"), FailureFailed},
	}

	for _, tc := range cases {
		gate := NewGate(&scriptedSensor{challengeErr: tc.err})
		result := gate.Authenticate(context.Background(), "unit test")
		if tc.err == nil {
			if !result.Success || result.Failure != FailureNone {
				t.Fatalf("success case misclassified: %+v", result)
			}
			continue
		}
		if result.Success {
			t.Fatalf("failure %v reported success", tc.err)
		}
		if result.Failure != tc.want {
			t.Fatalf("error %v classified as %v, want %v", tc.err, result.Failure, tc.want)
		}
	}
}

func TestAuthenticateNilSensor(t *testing.T) {
	gate := NewGate(nil)
	result := gate.Authenticate(context.Background(), "unit test")
	if result.Success || result.Failure != FailureHardwareUnavailable {
		t.Fatalf("nil sensor should be hardware-unavailable, got %+v", result)
	}
	if gate.BiometricCapable(context.Background()) {
		t.Fatal("nil sensor must not report capable")
	}
}

func TestChallengeAdapter(t *testing.T) {
	gate := NewGate(&scriptedSensor{})
	if err := gate.Challenge(context.Background(), "unlock"); err != nil {
		t.Fatalf("successful challenge returned error: %v", err)
	}

	gate = NewGate(&scriptedSensor{challengeErr: ErrLockedOut})
	err := gate.Challenge(context.Background(), "unlock")
	if err == nil || err.Error() != FailureLockedOut.String() {
		t.Fatalf("unexpected adapter error: %v", err)
	}
}
