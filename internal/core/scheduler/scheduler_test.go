package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddRejectsDuplicateName(t *testing.T) {
	s := New(nil)
	if err := s.Add("a", func(context.Context) error { return nil }, time.Hour, false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("a", func(context.Context) error { return nil }, time.Hour, false); err == nil {
		t.Fatal("expected error registering duplicate name")
	}
}

func TestRunImmediatelyInvokesCallback(t *testing.T) {
	s := New(nil)
	var n int32
	_ = s.Add("a", func(context.Context) error { atomic.AddInt32(&n, 1); return nil }, time.Hour, false)
	if err := s.RunImmediately("a"); err != nil {
		t.Fatalf("RunImmediately: %v", err)
	}
	if atomic.LoadInt32(&n) != 1 {
		t.Fatalf("expected callback to run once, got %d", n)
	}
}

func TestRunImmediatelyUnknownTaskErrors(t *testing.T) {
	s := New(nil)
	if err := s.RunImmediately("missing"); err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestStartRunsImmediateTasksAndStopHalts(t *testing.T) {
	s := New(nil)
	var n int32
	_ = s.Add("a", func(context.Context) error { atomic.AddInt32(&n, 1); return nil }, time.Hour, true)
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&n) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadInt32(&n) == 0 {
		t.Fatal("expected run_immediately task to fire at least once on Start")
	}
}

func TestStatsTrackRunsAndErrors(t *testing.T) {
	s := New(nil)
	_ = s.Add("a", func(context.Context) error { return errors.New("boom") }, time.Hour, false)
	_ = s.RunImmediately("a")
	stats := s.GetStats()
	st, ok := stats["a"]
	if !ok {
		t.Fatal("expected stats entry for task a")
	}
	if st.Runs != 1 || st.Errors != 1 {
		t.Fatalf("got %+v", st)
	}
}

func TestPanicInCallbackIsCaughtAsError(t *testing.T) {
	s := New(nil)
	_ = s.Add("a", func(context.Context) error { panic("boom") }, time.Hour, false)
	_ = s.RunImmediately("a")
	stats := s.GetStats()
	if stats["a"].Errors != 1 {
		t.Fatalf("expected panic to be recorded as an error, got %+v", stats["a"])
	}
}

func TestRemoveStopsTask(t *testing.T) {
	s := New(nil)
	_ = s.Add("a", func(context.Context) error { return nil }, time.Millisecond, false)
	s.Start()
	s.Remove("a")
	if err := s.RunImmediately("a"); err == nil {
		t.Fatal("expected removed task to be unknown")
	}
}
