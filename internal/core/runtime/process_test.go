package runtime

import (
	"context"
	"testing"
	"time"
)

func TestProcessRuntime_SpawnWaitExitCode(t *testing.T) {
	rt := NewProcessRuntime()
	ctx := context.Background()

	h, err := rt.Spawn(ctx, Spec{
		Identity:   "test-identity",
		BinaryPath: "/bin/sh",
		Args:       []string{"-c", "exit 0"},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	code, err := rt.Wait(ctx, h)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
}

func TestProcessRuntime_StatusUnknownForMissingHandle(t *testing.T) {
	rt := NewProcessRuntime()
	st, err := rt.Status(context.Background(), Handle{ID: "does-not-exist"})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != StateUnknown {
		t.Fatalf("State = %v, want StateUnknown", st.State)
	}
}

func TestProcessRuntime_StopKillsAfterTimeout(t *testing.T) {
	rt := NewProcessRuntime()
	ctx := context.Background()

	h, err := rt.Spawn(ctx, Spec{
		Identity:   "stubborn",
		BinaryPath: "/bin/sh",
		Args:       []string{"-c", "trap '' TERM; sleep 5"},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	start := time.Now()
	if err := rt.Stop(ctx, h, 200*time.Millisecond); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Stop took too long to escalate to kill: %v", elapsed)
	}
}
