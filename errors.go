package sessionkit

import "errors"

var (
	// ErrEngineNotReady is an exported constant or variable used by the session core.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrNoSession is an exported constant or variable used by the session core.
	ErrNoSession = errors.New("no active session")
	// ErrSessionExpired is an exported constant or variable used by the session core.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionTimedOut is an exported constant or variable used by the session core.
	ErrSessionTimedOut = errors.New("session exceeded maximum lifetime")
	// ErrSessionInactive is an exported constant or variable used by the session core.
	ErrSessionInactive = errors.New("session exceeded inactivity limit")
	// ErrFingerprintMismatch is an exported constant or variable used by the session core.
	ErrFingerprintMismatch = errors.New("device fingerprint mismatch")
	// ErrRefreshFailed is an exported constant or variable used by the session core.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrProviderRejected is an exported constant or variable used by the session core.
	ErrProviderRejected = errors.New("identity provider rejected token")
	// ErrPresenceDenied is an exported constant or variable used by the session core.
	ErrPresenceDenied = errors.New("presence challenge denied")
	// ErrSessionPersistFailed is an exported constant or variable used by the session core.
	ErrSessionPersistFailed = errors.New("session persistence failed")
	// ErrInvalidExpiry is an exported constant or variable used by the session core.
	ErrInvalidExpiry = errors.New("session expiry must be after creation time")
)
