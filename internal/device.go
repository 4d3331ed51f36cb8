package internal

import "crypto/sha256"

// FingerprintDevice hashes the stable device signals into the 32-byte
// fingerprint stored with each session. Signals are joined with a zero
// separator so ("ab","c") and ("a","bc") hash differently.
//
// FingerprintDevice does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func FingerprintDevice(signals ...string) [32]byte {
	h := sha256.New()
	for i, s := range signals {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(s))
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
