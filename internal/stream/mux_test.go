package stream

import (
	"context"
	"testing"
	"time"

	"github.com/mohammad-safakhou/curricula/config"
)

func testMux() *Mux {
	return NewMux(config.StreamConfig{
		KeepaliveInterval: 30 * time.Millisecond,
		PopTimeout:        20 * time.Millisecond,
		QueueSize:         16,
	}, nil)
}

func TestMuxOrderedTermination(t *testing.T) {
	m := testMux()
	ctx := context.Background()

	m.Publish(ctx, Status("one"))
	m.Publish(ctx, Status("two"))
	m.Publish(ctx, Status("three"))
	m.Finish(ctx, "sess-1")

	var got []Event
	if err := m.Consume(ctx, func(ev Event) error {
		got = append(got, ev)
		return nil
	}); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if len(got) != 4 {
		t.Fatalf("got %d events, want 4: %+v", len(got), got)
	}
	for i, want := range []string{"one", "two", "three"} {
		if got[i].Kind != KindStatus || got[i].Content != want {
			t.Fatalf("event %d = %+v, want status %q", i, got[i], want)
		}
	}
	if got[3].Kind != KindDone || got[3].SessionID != "sess-1" {
		t.Fatalf("last event = %+v, want done sentinel", got[3])
	}

	// The keepalive producer must be cancelled with the turn: nothing may
	// land on the queue after the sentinel.
	time.Sleep(100 * time.Millisecond)
	select {
	case ev := <-m.queue:
		t.Fatalf("event after done: %+v", ev)
	default:
	}
}

func TestMuxPingsWhileWorkInFlight(t *testing.T) {
	m := testMux()
	ctx := context.Background()

	go func() {
		time.Sleep(80 * time.Millisecond)
		m.Publish(ctx, Text("late result"))
		m.Finish(ctx, "sess-2")
	}()

	pings := 0
	var tail []Event
	if err := m.Consume(ctx, func(ev Event) error {
		if ev.Kind == KindPing {
			pings++
			return nil
		}
		tail = append(tail, ev)
		return nil
	}); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if pings == 0 {
		t.Fatal("expected at least one ping while the producer was slow")
	}
	if len(tail) != 2 || tail[0].Kind != KindText || tail[1].Kind != KindDone {
		t.Fatalf("unexpected tail %+v", tail)
	}
}

func TestMuxFailTerminatesWithSingleError(t *testing.T) {
	m := testMux()
	ctx := context.Background()

	m.Publish(ctx, Status("partial progress"))
	m.Fail(ctx, "sess-3", context.DeadlineExceeded)

	var got []Event
	if err := m.Consume(ctx, func(ev Event) error {
		got = append(got, ev)
		return nil
	}); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d events, want status+error+done: %+v", len(got), got)
	}
	if got[1].Kind != KindError || got[1].Message == "" {
		t.Fatalf("second event = %+v, want error with message", got[1])
	}
	if got[2].Kind != KindDone {
		t.Fatalf("stream not terminated by sentinel: %+v", got[2])
	}
}

func TestMuxConsumerStopsOnCancel(t *testing.T) {
	m := testMux()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := m.Consume(ctx, func(ev Event) error { return nil })
	if err != context.Canceled {
		t.Fatalf("Consume err = %v, want context.Canceled", err)
	}
}

func TestMuxProgressFeedsQueue(t *testing.T) {
	m := testMux()
	ctx := context.Background()

	m.Progress(ctx)("Scraping course page...")
	m.Finish(ctx, "sess-4")

	var got []Event
	if err := m.Consume(ctx, func(ev Event) error {
		got = append(got, ev)
		return nil
	}); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got[0].Kind != KindStatus || got[0].Content != "Scraping course page..." {
		t.Fatalf("progress event = %+v", got[0])
	}
}
