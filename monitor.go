package sessionkit

import (
	"context"
	"sync"
	"time"
)

// monitorCtxKey marks contexts originating inside a monitor goroutine so a
// session clear triggered from a tick does not wait on its own goroutine.
type monitorCtxKey struct{}

func fromMonitor(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(monitorCtxKey{}).(bool)
	return v
}

// monitorSet owns one generation of monitor goroutines. Each start builds a
// fresh set with its own WaitGroup, so a caller waiting on a retired set can
// never overlap another caller's Add on the next one.
type monitorSet struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// startMonitors launches the two periodic tasks: a refresh check every
// Monitor.RefreshInterval and a validation sweep every
// Monitor.SweepInterval. Both stop on stopMonitors and are restarted by
// CreateSession and UpdatePolicy.
func (e *Engine) startMonitors() {
	e.monMu.Lock()
	defer e.monMu.Unlock()

	if e.mon != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx = context.WithValue(ctx, monitorCtxKey{}, true)

	m := &monitorSet{cancel: cancel}
	m.wg.Add(2)
	go e.refreshLoop(ctx, &m.wg, e.config.Monitor.RefreshInterval)
	go e.sweepLoop(ctx, &m.wg, e.config.Monitor.SweepInterval)
	e.mon = m

	e.log.Debug().
		Dur("refresh_interval", e.config.Monitor.RefreshInterval).
		Dur("sweep_interval", e.config.Monitor.SweepInterval).
		Msg("session monitors started")
}

// stopMonitors retires the current monitor set and cancels its goroutines.
// With wait set it blocks until they have fully exited, so no tick can run
// against a cleared session afterwards.
func (e *Engine) stopMonitors(wait bool) {
	e.monMu.Lock()
	m := e.mon
	e.mon = nil
	e.monMu.Unlock()

	if m == nil {
		return
	}
	m.cancel()
	if wait {
		m.wg.Wait()
	}
}

// refreshLoop proactively refreshes the session as it nears expiry.
func (e *Engine) refreshLoop(ctx context.Context, wg *sync.WaitGroup, interval time.Duration) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RefreshSessionIfNeeded(ctx)
		}
	}
}

// sweepLoop clears sessions whose validation demands re-authentication.
func (e *Engine) sweepLoop(ctx context.Context, wg *sync.WaitGroup, interval time.Duration) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := e.ValidateSession(ctx)
			if result.ShouldReauthenticate && result.Reason != ReasonNoSession {
				e.metricInc(MetricSessionInvalidated)
				e.log.Info().Str("reason", result.Reason).Msg("sweep clearing invalid session")
				_ = e.clearSession(ctx, false)
				return
			}
		}
	}
}
