package audit

import (
	"context"
	"testing"
	"time"
)

// gateSink blocks inside Emit until released, so tests can hold the drainer
// in a known position.
type gateSink struct {
	entered chan Event
	release chan struct{}
}

func (s *gateSink) Emit(_ context.Context, event Event) {
	s.entered <- event
	<-s.release
}

func TestNewDispatcherDisabled(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatalf("disabled config should yield a nil dispatcher, got %+v", d)
	}
	// Nil receivers are no-ops.
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatalf("nil dispatcher dropped = %d", d.Dropped())
	}
}

func TestDispatcherFlushesOnClose(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "created"})
	}
	d.Close()

	for i := 0; i < 3; i++ {
		select {
		case <-sink.Events():
		default:
			t.Fatalf("event %d not flushed before Close returned", i)
		}
	}

	// Emit after close is a no-op, and closing again is safe.
	d.Emit(context.Background(), Event{EventType: "late"})
	d.Close()
	select {
	case ev := <-sink.Events():
		t.Fatalf("event accepted after close: %+v", ev)
	default:
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &gateSink{entered: make(chan Event, 4), release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	d.Emit(context.Background(), Event{EventType: "a"})
	// Wait until the drainer has taken "a" and is parked inside the sink,
	// leaving the buffer empty.
	select {
	case <-sink.entered:
	case <-time.After(time.Second):
		t.Fatal("drainer never reached the sink")
	}

	d.Emit(context.Background(), Event{EventType: "b"})
	d.Emit(context.Background(), Event{EventType: "c"})

	if got := d.Dropped(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}

	close(sink.release)
	d.Close()

	select {
	case ev := <-sink.entered:
		if ev.EventType != "b" {
			t.Fatalf("flushed %q, want the buffered event", ev.EventType)
		}
	case <-time.After(time.Second):
		t.Fatal("buffered event not flushed on close")
	}
}
