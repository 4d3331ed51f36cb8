package recovery

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// MaxRetryAttempts is an exported constant or variable used by the recovery orchestrator.
	MaxRetryAttempts = 3
	// DefaultBaseDelay is an exported constant or variable used by the recovery orchestrator.
	DefaultBaseDelay = 1000 * time.Millisecond
)

// Result is the structured outcome of one [Orchestrator.HandleError] call.
// ShouldNotifyUser implies a non-empty localized UserMessage.
type Result struct {
	Success          bool
	Strategy         Strategy
	ShouldRetry      bool
	ShouldNotifyUser bool
	UserMessage      string
}

// Hooks are the side-effecting collaborators a recovery may invoke. Any nil
// hook makes its strategy branch report failure instead of panicking.
type Hooks struct {
	// ProbeStore performs a trivial read against the local store.
	ProbeStore func(ctx context.Context) error
	// ReinitStore rebuilds the local store from scratch.
	ReinitStore func(ctx context.Context) error
	// Connectivity reports whether the network is currently reachable.
	Connectivity func(ctx context.Context) bool
	// ClearTokens drops cached credentials after an auth expiry.
	ClearTokens func(ctx context.Context) error
	// PurgeCache deletes known-disposable cache entries.
	PurgeCache func(ctx context.Context) error
	// ResetSync reinitializes sync state from the source of truth.
	ResetSync func(ctx context.Context) error
}

// Options tunes the orchestrator. Zero values take the package defaults.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      zerolog.Logger
}

// Orchestrator classifies failures and drives the per-kind strategy table.
// Recoveries for distinct kinds may run concurrently; a second failure of a
// kind already recovering is ignored immediately. Safe for concurrent use.
type Orchestrator struct {
	hooks       Hooks
	patterns    *PatternTracker
	maxAttempts int
	baseDelay   time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	inflight map[ErrorKind]bool
	attempts map[ErrorKind]int

	sleep func(ctx context.Context, d time.Duration)
}

// NewOrchestrator describes the neworchestrator operation and its observable behavior.
func NewOrchestrator(hooks Hooks, prefs PreferenceStore, opts Options) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = MaxRetryAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	return &Orchestrator{
		hooks:       hooks,
		patterns:    NewPatternTracker(prefs),
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		log:         opts.Logger,
		inflight:    make(map[ErrorKind]bool),
		attempts:    make(map[ErrorKind]int),
		sleep:       sleepCtx,
	}
}

// Patterns exposes the telemetry tracker.
func (o *Orchestrator) Patterns() *PatternTracker { return o.patterns }

// HandleError classifies err, records its pattern, and runs the strategy for
// its kind unless one is already in flight. Never panics; every path returns
// a [Result].
//
// The per-kind attempt budget only clears when a recovery branch verified
// the underlying fault is gone (a store read succeeded, a purge completed).
// A branch that merely recommends retrying keeps the budget ticking, so a
// persistent fault always reaches its exhausted row.
func (o *Orchestrator) HandleError(ctx context.Context, err error, operation string) Result {
	if err == nil {
		return Result{Success: true, Strategy: StrategyIgnore}
	}
	kind := Classify(err)

	o.mu.Lock()
	if o.inflight[kind] {
		o.mu.Unlock()
		o.log.Debug().Str("kind", kind.String()).Str("operation", operation).
			Msg("recovery already in flight, ignoring")
		return Result{Success: false, Strategy: StrategyIgnore}
	}
	o.inflight[kind] = true
	o.attempts[kind]++
	attempt := o.attempts[kind]
	o.mu.Unlock()

	o.patterns.Record(ctx, kind)
	o.log.Warn().Err(err).Str("kind", kind.String()).Str("operation", operation).
		Int("attempt", attempt).Msg("recovering from failure")

	result, verified := o.dispatch(ctx, kind, attempt)
	if result.ShouldNotifyUser && result.UserMessage == "" {
		result.UserMessage = userMessage(ctx, kind)
	}
	o.patterns.Outcome(ctx, kind, result.Success, result.Strategy)

	o.mu.Lock()
	if verified {
		o.attempts[kind] = 0
	}
	delete(o.inflight, kind)
	o.mu.Unlock()

	return result
}

// Resolve clears the attempt budget for kind. Retry-style recoveries cannot
// verify the fault is gone themselves; callers invoke Resolve when an
// operation that previously failed with kind completes cleanly.
func (o *Orchestrator) Resolve(kind ErrorKind) {
	o.mu.Lock()
	o.attempts[kind] = 0
	o.mu.Unlock()
}

// dispatch runs the strategy branch for kind. The second return reports
// whether the branch verified recovery; only then does the attempt budget
// reset.
func (o *Orchestrator) dispatch(ctx context.Context, kind ErrorKind, attempt int) (Result, bool) {
	switch kind {
	case KindLocalStoreUnavailable:
		return o.recoverLocalStore(ctx, attempt)
	case KindNetworkTimeout:
		return o.recoverNetwork(ctx, attempt)
	case KindAuthExpired:
		return o.recoverAuthExpired(ctx)
	case KindStorageFull:
		return o.recoverStorageFull(ctx, attempt)
	case KindMemoryPressure:
		return o.recoverMemoryPressure(attempt)
	case KindSyncConflict:
		return o.recoverSyncConflict(ctx)
	case KindPlatformBridgeFault:
		return o.recoverBridgeFault(attempt)
	default:
		return o.recoverUnknown(ctx, attempt)
	}
}

// recoverLocalStore retries with a linear backoff and a trivial read probe;
// the final attempt reinitializes the store from scratch. Past the budget it
// degrades to read-only mode.
func (o *Orchestrator) recoverLocalStore(ctx context.Context, attempt int) (Result, bool) {
	switch {
	case attempt < o.maxAttempts:
		o.sleep(ctx, o.baseDelay*time.Duration(attempt))
		ok := o.hooks.ProbeStore != nil && o.hooks.ProbeStore(ctx) == nil
		return Result{Success: ok, Strategy: StrategyRetry, ShouldRetry: true}, ok
	case attempt == o.maxAttempts:
		if o.hooks.ReinitStore == nil || o.hooks.ReinitStore(ctx) != nil {
			return Result{Strategy: StrategyReinitialize, ShouldRetry: true}, false
		}
		ok := o.hooks.ProbeStore == nil || o.hooks.ProbeStore(ctx) == nil
		return Result{Success: ok, Strategy: StrategyReinitialize, ShouldRetry: ok}, ok
	default:
		return Result{Strategy: StrategyFallback, ShouldNotifyUser: true}, false
	}
}

// recoverNetwork fails fast while offline and otherwise backs off
// exponentially, delay 1000*2^n. A backoff is advice, not proof the network
// recovered, so the budget only clears while offline (those calls don't
// count against it) or through [Orchestrator.Resolve].
func (o *Orchestrator) recoverNetwork(ctx context.Context, attempt int) (Result, bool) {
	if o.hooks.Connectivity != nil && !o.hooks.Connectivity(ctx) {
		return Result{Success: false, Strategy: StrategyRetry, ShouldRetry: true}, true
	}
	if attempt > o.maxAttempts {
		return Result{Strategy: StrategyFallback, ShouldNotifyUser: true}, false
	}
	o.sleep(ctx, o.baseDelay*time.Duration(1<<(attempt-1)))
	return Result{Success: true, Strategy: StrategyRetry, ShouldRetry: true}, false
}

// recoverAuthExpired clears cached tokens; the user must re-authenticate, so
// no automatic retry is suggested.
func (o *Orchestrator) recoverAuthExpired(ctx context.Context) (Result, bool) {
	ok := o.hooks.ClearTokens != nil && o.hooks.ClearTokens(ctx) == nil
	return Result{Success: ok, Strategy: StrategyReset, ShouldNotifyUser: true}, ok
}

func (o *Orchestrator) recoverStorageFull(ctx context.Context, attempt int) (Result, bool) {
	if attempt > o.maxAttempts {
		return Result{Strategy: StrategyReset, ShouldNotifyUser: true}, false
	}
	ok := o.hooks.PurgeCache != nil && o.hooks.PurgeCache(ctx) == nil
	return Result{Success: ok, Strategy: StrategyReset, ShouldRetry: ok, ShouldNotifyUser: !ok}, ok
}

// recoverMemoryPressure hints the collector and lets the caller retry. The
// hint is unverifiable, so sustained pressure exhausts the budget and
// degrades to fallback.
func (o *Orchestrator) recoverMemoryPressure(attempt int) (Result, bool) {
	if attempt > o.maxAttempts {
		return Result{Strategy: StrategyFallback, ShouldNotifyUser: true}, false
	}
	runtime.GC()
	return Result{Success: true, Strategy: StrategyRetry, ShouldRetry: true}, false
}

func (o *Orchestrator) recoverSyncConflict(ctx context.Context) (Result, bool) {
	ok := o.hooks.ResetSync != nil && o.hooks.ResetSync(ctx) == nil
	return Result{Success: ok, Strategy: StrategyReinitialize, ShouldNotifyUser: !ok}, ok
}

// recoverBridgeFault tolerates transient bridge noise; repeated faults are
// treated as fatal.
func (o *Orchestrator) recoverBridgeFault(attempt int) (Result, bool) {
	if attempt <= o.maxAttempts {
		return Result{Success: true, Strategy: StrategyIgnore}, false
	}
	return Result{Strategy: StrategyReset, ShouldNotifyUser: true}, false
}

// recoverUnknown retries twice with a fixed delay, then gives up.
func (o *Orchestrator) recoverUnknown(ctx context.Context, attempt int) (Result, bool) {
	if attempt <= 2 {
		o.sleep(ctx, o.baseDelay)
		return Result{Success: true, Strategy: StrategyRetry, ShouldRetry: true}, false
	}
	return Result{Strategy: StrategyFallback, ShouldNotifyUser: true}, false
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
