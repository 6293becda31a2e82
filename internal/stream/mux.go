package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mohammad-safakhou/curricula/config"
	"github.com/mohammad-safakhou/curricula/internal/telemetry"
)

// Mux merges the three producers of one chat turn (engine step events,
// tool progress callbacks, idle keepalives) into a single ordered queue
// consumed by the SSE writer. One Mux serves exactly one turn.
type Mux struct {
	queue     chan Event
	pop       time.Duration
	keepalive time.Duration
	working   atomic.Bool
	telemetry *telemetry.Telemetry
}

// NewMux builds a turn-scoped multiplexer. The telemetry handle may be nil.
func NewMux(cfg config.StreamConfig, tel *telemetry.Telemetry) *Mux {
	pop := cfg.PopTimeout
	if pop <= 0 {
		pop = 2 * time.Second
	}
	ka := cfg.KeepaliveInterval
	if ka <= 0 {
		ka = 15 * time.Second
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	m := &Mux{
		queue:     make(chan Event, size),
		pop:       pop,
		keepalive: ka,
		telemetry: tel,
	}
	m.working.Store(true)
	return m
}

// Publish enqueues an event. It blocks only when the queue is full and
// gives up if the turn is cancelled first.
func (m *Mux) Publish(ctx context.Context, ev Event) {
	if m.telemetry != nil {
		m.telemetry.RecordStreamEvent(string(ev.Kind))
	}
	select {
	case m.queue <- ev:
	case <-ctx.Done():
	}
}

// Progress adapts Publish to the tool registry's progress callback shape.
func (m *Mux) Progress(ctx context.Context) func(string) {
	return func(message string) {
		m.Publish(ctx, Status(message))
	}
}

// Finish marks the step producer done and pushes the terminating sentinel.
// After Finish the consumer drains remaining events and stops at the
// sentinel; the keepalive producer winds down with it.
func (m *Mux) Finish(ctx context.Context, sessionID string) {
	m.working.Store(false)
	m.Publish(ctx, Done(sessionID))
}

// Fail terminates the stream with a single error event followed by the
// sentinel. Progress already streamed stays with the client.
func (m *Mux) Fail(ctx context.Context, sessionID string, err error) {
	m.working.Store(false)
	m.Publish(ctx, Errorf("%v", err))
	m.Publish(ctx, Done(sessionID))
}

// Working reports whether the step producer is still running.
func (m *Mux) Working() bool { return m.working.Load() }

// Consume pumps events to emit until the done sentinel arrives, the
// producer goes quiet after finishing, or ctx is cancelled. A pop that
// times out while work is in flight emits a ping so proxies keep the
// connection open. The keepalive producer is started here and cancelled
// before Consume returns.
func (m *Mux) Consume(ctx context.Context, emit func(Event) error) error {
	kaCtx, cancelKeepalive := context.WithCancel(ctx)
	defer cancelKeepalive()
	go m.keepaliveLoop(kaCtx)

	timer := time.NewTimer(m.pop)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.pop)

		select {
		case ev := <-m.queue:
			if err := emit(ev); err != nil {
				return err
			}
			if ev.Kind == KindDone {
				return nil
			}
		case <-timer.C:
			if !m.working.Load() {
				return nil
			}
			if err := emit(Ping()); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// keepaliveLoop pushes periodic pings while the step producer runs. It
// exits on cancellation or as soon as the producer finishes.
func (m *Mux) keepaliveLoop(ctx context.Context) {
	ticker := time.NewTicker(m.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.working.Load() {
				return
			}
			select {
			case m.queue <- Ping():
			default:
			}
		}
	}
}
