package eventbus

import (
	"sync/atomic"
	"testing"
)

func TestEmitFansOutToAllSubscribers(t *testing.T) {
	b := New(nil)
	var count int32
	b.Subscribe("tick", func(map[string]any) { atomic.AddInt32(&count, 1) })
	b.Subscribe("tick", func(map[string]any) { atomic.AddInt32(&count, 1) })

	n := b.Emit("tick", nil)
	if n != 2 {
		t.Fatalf("expected 2 successful handlers, got %d", n)
	}
	if atomic.LoadInt32(&count) != 2 {
		t.Fatalf("expected both handlers to run, got %d", count)
	}
}

func TestPanickingHandlerIsolated(t *testing.T) {
	b := New(nil)
	var ran int32
	b.Subscribe("tick", func(map[string]any) { panic("boom") })
	b.Subscribe("tick", func(map[string]any) { atomic.AddInt32(&ran, 1) })

	n := b.Emit("tick", nil)
	if n != 1 {
		t.Fatalf("expected 1 successful handler (the non-panicking one), got %d", n)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("expected the non-panicking handler to still run")
	}
}

func TestEmitWithNoSubscribersReturnsZero(t *testing.T) {
	b := New(nil)
	if n := b.Emit("nothing", nil); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestClearRemovesAllSubscriptions(t *testing.T) {
	b := New(nil)
	b.Subscribe("tick", func(map[string]any) {})
	b.Clear()
	if n := b.Emit("tick", nil); n != 0 {
		t.Fatalf("expected 0 after Clear, got %d", n)
	}
}

func TestArgsPassedThroughToHandler(t *testing.T) {
	b := New(nil)
	var got string
	done := make(chan struct{})
	b.Subscribe("greet", func(args map[string]any) {
		got, _ = args["name"].(string)
		close(done)
	})
	b.Emit("greet", map[string]any{"name": "Aria"})
	<-done
	if got != "Aria" {
		t.Fatalf("got %q", got)
	}
}
