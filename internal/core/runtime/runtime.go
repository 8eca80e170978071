// Package runtime abstracts how one identity's orchestrator process is
// spawned: as a bare OS process (the spec-mandated default) or, optionally,
// inside a container for stronger isolation.
//
// The Runtime/AgentSpec/AgentHandle interface shape is grounded on the
// teacher's internal/ruriko/runtime package (interface.go/types.go),
// generalized from Docker-container-only agents to a runtime that also
// covers the spec's default bare-process model.
package runtime

import (
	"context"
	"time"
)

// Spec describes how to launch one identity's orchestrator.
type Spec struct {
	// Identity is the identity name, used as "run {identity}".
	Identity string
	// BinaryPath is the agentcore binary to exec (process runtime) or the
	// image to run it from (container runtime).
	BinaryPath string
	// Args are extra arguments appended after "run {identity}".
	Args []string
	// Env holds additional environment variables for the child.
	Env map[string]string
	// Labels are opaque metadata attached to the runtime's managed unit
	// (e.g. container labels); ignored by the process runtime.
	Labels map[string]string
}

// State mirrors a subset of AgentProcess.State relevant to one running unit.
type State string

const (
	StateRunning State = "running"
	StateExited  State = "exited"
	StateUnknown State = "unknown"
)

// Status reports one running unit's live state.
type Status struct {
	State      State
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Handle identifies one spawned unit (a PID for the process runtime, a
// container ID for the container runtime).
type Handle struct {
	Identity string
	ID       string // PID (as string) or container ID
}

// Runtime abstracts the process/container orchestration backend used to run
// one identity's orchestrator. Every identity still communicates with the
// supervisor over the same local IPC socket regardless of which Runtime
// spawned it (spec.md §4.16, §5: IPC-only, no other shared channel).
type Runtime interface {
	// Spawn launches a new unit from spec and returns its handle.
	Spawn(ctx context.Context, spec Spec) (Handle, error)
	// Stop gracefully stops the unit, escalating to a forceful kill after
	// timeout.
	Stop(ctx context.Context, h Handle, timeout time.Duration) error
	// Status returns the unit's current status.
	Status(ctx context.Context, h Handle) (Status, error)
	// Wait blocks until the unit exits and returns its exit code.
	Wait(ctx context.Context, h Handle) (int, error)
}
