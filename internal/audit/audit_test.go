package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatcherDeliversAndDrains(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Emit(context.Background(), Event{EventType: "login_failure"})
	d.Close()

	got := []string{(<-sink.Events()).EventType, (<-sink.Events()).EventType}
	if got[0] != "login_success" || got[1] != "login_failure" {
		t.Fatalf("unexpected order: %v", got)
	}

	d.Emit(context.Background(), Event{EventType: "after_close"})
	select {
	case e := <-sink.Events():
		t.Fatalf("event after Close delivered: %+v", e)
	default:
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(context.Context, Event) { <-s.release }

func TestDispatcherDropIfFullCallsOnDrop(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var dropped []string
	d := NewDispatcher(Config{
		Enabled: true, BufferSize: 1, DropIfFull: true,
		OnDrop: func(e Event) {
			mu.Lock()
			dropped = append(dropped, e.EventType)
			mu.Unlock()
		},
	}, blockingSink{release: release})

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "e"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a stalled sink")
	}
	mu.Lock()
	n := len(dropped)
	mu.Unlock()
	if uint64(n) != d.Dropped() {
		t.Fatalf("OnDrop calls %d != Dropped() %d", n, d.Dropped())
	}
	close(release)
	d.Close()
}

func TestDispatcherBlockTimeoutBoundsWait(t *testing.T) {
	release := make(chan struct{})
	var drops atomic.Int32
	d := NewDispatcher(Config{
		Enabled: true, BufferSize: 1, BlockTimeout: 20 * time.Millisecond,
		OnDrop: func(Event) { drops.Add(1) },
	}, blockingSink{release: release})

	// The first event parks the goroutine in the sink and the second fills the buffer.
	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Emit(context.Background(), Event{EventType: "otp_sent"})

	start := time.Now()
	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "reset_requested"})
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Emit blocked for %v", elapsed)
	}
	if d.Dropped() == 0 || uint64(drops.Load()) != d.Dropped() {
		t.Fatalf("expected timed-out events to be counted, dropped=%d onDrop=%d", d.Dropped(), drops.Load())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before := d.Dropped()
	d.Emit(ctx, Event{EventType: "refresh_success"})
	if d.Dropped() != before+1 {
		t.Fatalf("cancelled context should drop, dropped=%d", d.Dropped())
	}

	close(release)
	d.Close()
}

func TestNilDispatcherIsSafe(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, nil)
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: "refresh", IdentityID: "7", Success: true, Timestamp: time.Unix(0, 0).UTC()})

	var decoded Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EventType != "refresh" || decoded.IdentityID != "7" || !decoded.Success {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewZapSink(zap.New(core))

	s.Emit(context.Background(), Event{EventType: "login_success", Success: true})
	s.Emit(context.Background(), Event{EventType: "login_failure", Error: "invalid credentials"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels: %v %v", entries[0].Level, entries[1].Level)
	}
	if entries[1].ContextMap()["error"] != "invalid credentials" {
		t.Fatalf("missing error field: %v", entries[1].ContextMap())
	}
}
