package sessionkit

// State is the lifecycle state of the engine's session aggregate. Active is
// the only state in which the access token may be handed to callers.
//
//	Docs: docs/lifecycle.md
type State uint8

const (
	// StateUnauthenticated is an exported constant or variable used by the session core.
	StateUnauthenticated State = iota
	// StateActive is an exported constant or variable used by the session core.
	StateActive
	// StateRefreshing is an exported constant or variable used by the session core.
	StateRefreshing
)

// String describes the string operation and its observable behavior.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// ValidationResult is returned by [Engine.ValidateSession]. Exactly one
// failing check populates Reason and Err; a valid session leaves both empty.
// Err carries the matching sentinel so callers can branch with [errors.Is]
// instead of comparing Reason strings.
type ValidationResult struct {
	IsValid              bool
	NeedsRefresh         bool
	ShouldReauthenticate bool
	Reason               string
	Err                  error
}

// DeviceInfo carries the stable device signals the session fingerprint is
// computed from. All fields participate in the fingerprint; changing any of
// them invalidates sessions when fingerprint validation is enabled.
type DeviceInfo struct {
	DeviceID   string
	Model      string
	OSVersion  string
	AppVersion string
}

// LifecycleSignal is an app foreground/background transition reported by
// the host UI layer.
type LifecycleSignal uint8

const (
	// SignalForeground is an exported constant or variable used by the session core.
	SignalForeground LifecycleSignal = iota
	// SignalBackground is an exported constant or variable used by the session core.
	SignalBackground
)

// String describes the string operation and its observable behavior.
func (s LifecycleSignal) String() string {
	if s == SignalBackground {
		return "background"
	}
	return "foreground"
}
