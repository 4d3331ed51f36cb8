package session

import "time"

// Provider identifies the credential origin of a session.
type Provider uint8

const (
	// ProviderPassword is an exported constant or variable used by the session core.
	ProviderPassword Provider = iota
	// ProviderGoogle is an exported constant or variable used by the session core.
	ProviderGoogle
	// ProviderApple is an exported constant or variable used by the session core.
	ProviderApple
)

// String describes the string operation and its observable behavior.
func (p Provider) String() string {
	switch p {
	case ProviderPassword:
		return "password"
	case ProviderGoogle:
		return "google"
	case ProviderApple:
		return "apple"
	default:
		return "unknown"
	}
}

// Session defines a public type used by sessionkit APIs.
//
// Session instances are owned exclusively by the lifecycle engine; callers
// receive copies and must not rely on mutating them.
type Session struct {
	SessionID string

	AccessToken  string
	RefreshToken string

	Provider Provider

	// User is the opaque identity payload minted by the provider. The core
	// persists it verbatim and never interprets it.
	User []byte

	Fingerprint [32]byte

	Generation uint64

	SchemaVersion uint8

	CreatedAt     int64
	ExpiresAt     int64
	LastRefreshAt int64
	LastActiveAt  int64
}

// ExpiresIn returns the remaining access-token lifetime at the given instant.
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	return time.Unix(s.ExpiresAt, 0).Sub(now)
}

// Age returns the elapsed time since session creation at the given instant.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(s.CreatedAt, 0))
}

// Idle returns the elapsed time since the last recorded activity.
func (s *Session) Idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(s.LastActiveAt, 0))
}

// Clone returns a deep copy safe to hand to callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.User != nil {
		out.User = make([]byte, len(s.User))
		copy(out.User, s.User)
	}
	return &out
}
