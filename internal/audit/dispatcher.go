package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls how the Engine's login, OTP, challenge and reset events reach a Sink.
//
// With DropIfFull an event that finds the buffer full is discarded at once. Otherwise
// Emit waits for room until the caller's context ends or, when BlockTimeout is set, for
// at most BlockTimeout. An event given up on either way is counted as dropped and
// handed to OnDrop, which runs synchronously on the emitting goroutine.
type Config struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	BlockTimeout time.Duration
	OnDrop       func(Event)
}

// Dispatcher moves audit delivery off the request path onto one goroutine.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery goroutine. A disabled config yields a nil
// *Dispatcher, and every method is a no-op on nil.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

// drain flushes whatever was queued before Close.
func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		default:
			return
		}
	}
}

// Sinks get a background context: the request that produced the event has usually
// finished by the time it is delivered.
func (d *Dispatcher) deliver(event Event) {
	d.sink.Emit(context.Background(), event)
}

// Emit queues event for delivery.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case d.ch <- event:
		return
	default:
	}
	if d.cfg.DropIfFull {
		d.drop(event)
		return
	}

	var timeout <-chan time.Time
	if d.cfg.BlockTimeout > 0 {
		t := time.NewTimer(d.cfg.BlockTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case d.ch <- event:
	case <-d.done:
	case <-ctx.Done():
		d.drop(event)
	case <-timeout:
		d.drop(event)
	}
}

func (d *Dispatcher) drop(event Event) {
	d.dropped.Add(1)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(event)
	}
}

// Close delivers queued events and stops the goroutine. Later Emits are ignored.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
