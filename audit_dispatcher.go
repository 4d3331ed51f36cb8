package sessionkit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// auditDispatcher keeps audit delivery off the session hot path: Emit
// enqueues and returns, a single forwarder goroutine hands events to the
// sink in order. With DropIfFull set a full buffer sheds the newest event
// and counts it rather than stalling the session operation that produced
// it; the shed total is reported through Dropped and logged on shutdown.
type auditDispatcher struct {
	sink       AuditSink
	events     chan AuditEvent
	quit       chan struct{}
	done       chan struct{}
	dropIfFull bool
	log        zerolog.Logger

	dropped   atomic.Uint64
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, log zerolog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		events:     make(chan AuditEvent, cfg.BufferSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		log:        log,
	}
	go d.forward()
	return d
}

// forward delivers events in order until Close, then drains whatever is
// still buffered so a clean shutdown loses nothing that was accepted.
func (d *auditDispatcher) forward() {
	defer close(d.done)
	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			for {
				select {
				case event := <-d.events:
					d.sink.Emit(context.Background(), event)
				default:
					if n := d.dropped.Load(); n > 0 {
						d.log.Warn().Uint64("dropped", n).Msg("audit buffer overflowed; events were lost")
					}
					return
				}
			}
		}
	}
}

// Emit queues one event for delivery. After Close it is a no-op, never a
// panic or a block.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	select {
	case <-d.quit:
		return
	default:
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.events <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops intake, drains the buffer, and waits for the forwarder to
// exit. Idempotent.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		close(d.quit)
		<-d.done
	})
}

// Dropped reports how many events were shed since startup.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
