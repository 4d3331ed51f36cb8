package securestore

import "errors"

var (
	// ErrNotFound is an exported constant or variable used by the secure store.
	ErrNotFound = errors.New("entry not found")
	// ErrNotInitialized is an exported constant or variable used by the secure store.
	ErrNotInitialized = errors.New("store not initialized")
	// ErrKeystoreUnavailable is an exported constant or variable used by the secure store.
	ErrKeystoreUnavailable = errors.New("keystore unavailable")
	// ErrKeystoreSelfTestFailed is an exported constant or variable used by the secure store.
	ErrKeystoreSelfTestFailed = errors.New("keystore self-test failed")
	// ErrDecryptionFailed is an exported constant or variable used by the secure store.
	ErrDecryptionFailed = errors.New("record decryption failed")
	// ErrStoreFailed is an exported constant or variable used by the secure store.
	ErrStoreFailed = errors.New("store operation failed")
	// ErrPresenceDenied is an exported constant or variable used by the secure store.
	ErrPresenceDenied = errors.New("presence challenge denied")
)
