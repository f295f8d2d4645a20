package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher decouples session operations from sink latency: events queue
// onto a buffered channel and a single background drainer forwards them, so
// a slow sink never stalls a verify or refresh.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	mu     sync.RWMutex
	closed bool

	events  chan Event
	drained chan struct{}
	dropped atomic.Uint64
}

// NewDispatcher starts the drainer. A disabled config returns nil; the nil
// dispatcher accepts Emit, Close, and Dropped as no-ops.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		events:     make(chan Event, buffer),
		drained:    make(chan struct{}),
	}
	go d.drain()
	return d
}

// drain forwards events until the channel is closed, then signals that
// everything buffered has been flushed through the sink.
func (d *Dispatcher) drain() {
	defer close(d.drained)
	for event := range d.events {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues one event. With DropIfFull set, a full buffer increments the
// drop counter instead of blocking; otherwise Emit waits for room or for ctx
// to end.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
	}
}

// Close stops intake, flushes buffered events through the sink, and waits
// for the drainer to exit. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()
	<-d.drained
}

// Dropped reports how many events were discarded under backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
