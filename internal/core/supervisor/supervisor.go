// Package supervisor implements the multi-identity process manager: it
// spawns one orchestrator per identity (by default a bare OS process, per
// internal/core/runtime), restarts crashed children with exponential
// backoff up to a cap, serves the local IPC socket children use for
// status/permission requests, and writes its own (not per-identity) audit
// log.
//
// The map-of-managed-children-plus-mutex-plus-watch-goroutine shape is
// grounded on the teacher's internal/gitai/supervisor.Supervisor
// (clients map, startLocked, watchAndRestart), generalized from MCP server
// processes with library-managed auto-restart to identity orchestrator
// processes/containers with an explicit backoff-and-cap restart policy and
// a CRASHED terminal state.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/silverreef/agentcore/common/retry"
	"github.com/silverreef/agentcore/internal/core/audit"
	"github.com/silverreef/agentcore/internal/core/ipc"
	"github.com/silverreef/agentcore/internal/core/runtime"
)

// ProcessState is one AgentProcess's place in the supervisor's state
// machine: INIT -> STARTING -> RUNNING -> STOPPED | CRASHED, with
// CRASHED -> STARTING permitted until the restart cap is reached.
type ProcessState string

const (
	StateInit     ProcessState = "INIT"
	StateStarting ProcessState = "STARTING"
	StateRunning  ProcessState = "RUNNING"
	StateStopped  ProcessState = "STOPPED"
	StateCrashed  ProcessState = "CRASHED"
)

// AgentProcess is the supervisor-side view of one identity's child.
type AgentProcess struct {
	Identity       string
	PID            string // process PID or container ID, as reported by the runtime.Handle
	State          ProcessState
	RestartCount   int
	ExitCode       int
	LastExitSignal string
}

const (
	defaultMaxRestarts = 5
	baseBackoff        = 1 * time.Second
	maxBackoff         = 60 * time.Second
	stopTimeout        = 10 * time.Second
)

// Config configures a Supervisor.
type Config struct {
	// Identities are the identity names to launch, in order.
	Identities []string
	// Root is the same filesystem root an Orchestrator's Layout uses;
	// the supervisor's own audit database lives under {Root}/data/supervisor.
	Root string
	// BinaryPath is the agentcore executable each child runs as
	// "{BinaryPath} run {identity}". Defaults to os.Executable().
	BinaryPath string
	// Runtime spawns/stops/inspects children. Defaults to
	// runtime.NewProcessRuntime().
	Runtime runtime.Runtime
	// SocketPath is the Unix-domain socket path children dial for IPC.
	SocketPath string
	// TokenPath is where the shared auth token is stored (created on
	// first run if absent).
	TokenPath string
	// MaxRestarts bounds the restarts of an identity (its restart count is
	// never reset) before a crashed identity is marked CRASHED and left
	// stopped. Defaults to 5.
	MaxRestarts int
	// Logger receives structured supervisor-level log lines. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

type managedProcess struct {
	proc   AgentProcess
	handle runtime.Handle
}

// Supervisor is the multi-identity process lifecycle manager.
type Supervisor struct {
	cfg     Config
	logger  *slog.Logger
	rt      runtime.Runtime
	audit   *audit.Log
	ipcSrv  *ipc.Server
	binPath string

	mu    sync.Mutex
	procs map[string]*managedProcess

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New validates cfg and constructs a Supervisor. It does not spawn any
// children yet; call Run or Start for that.
func New(cfg Config) (*Supervisor, error) {
	if len(cfg.Identities) == 0 {
		return nil, fmt.Errorf("supervisor: at least one identity is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = defaultMaxRestarts
	}
	if cfg.Runtime == nil {
		cfg.Runtime = runtime.NewProcessRuntime()
	}

	binPath := cfg.BinaryPath
	if binPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("supervisor: resolve binary path: %w", err)
		}
		binPath = exe
	}

	auditDir := filepath.Join(cfg.Root, "data", "supervisor")
	if err := os.MkdirAll(auditDir, 0o700); err != nil {
		return nil, fmt.Errorf("supervisor: create audit dir: %w", err)
	}
	auditLog, err := audit.Open(filepath.Join(auditDir, "audit.db"))
	if err != nil {
		return nil, fmt.Errorf("supervisor: open audit log: %w", err)
	}

	procs := make(map[string]*managedProcess, len(cfg.Identities))
	for _, name := range cfg.Identities {
		procs[name] = &managedProcess{proc: AgentProcess{Identity: name, State: StateInit}}
	}

	s := &Supervisor{
		cfg:     cfg,
		logger:  cfg.Logger,
		rt:      cfg.Runtime,
		audit:   auditLog,
		binPath: binPath,
		procs:   procs,
		stopCh:  make(chan struct{}),
	}

	token, err := ipc.LoadOrCreateToken(cfg.TokenPath)
	if err != nil {
		auditLog.Close()
		return nil, fmt.Errorf("supervisor: load auth token: %w", err)
	}
	s.ipcSrv = ipc.NewServer(cfg.SocketPath, token, s.handleIPC, cfg.Logger)

	return s, nil
}

// Start spawns one child per configured identity and opens the IPC server.
// It does not block; call Run to block until shutdown.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.ipcSrv.Start(); err != nil {
		return fmt.Errorf("supervisor: start ipc server: %w", err)
	}

	for _, name := range s.cfg.Identities {
		if err := s.spawn(ctx, name); err != nil {
			s.logger.Error("supervisor: initial spawn failed", "identity", name, "error", err)
			s.writeAudit(ctx, "spawn_failed", name, false, err.Error())
			continue
		}
		go s.watch(ctx, name)
	}
	return nil
}

// Run starts the supervisor and blocks until SIGINT/SIGTERM, then stops.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
	case <-s.stopCh:
	}
	return s.Stop(context.Background())
}

func (s *Supervisor) spawn(ctx context.Context, identity string) error {
	s.mu.Lock()
	mp := s.procs[identity]
	mp.proc.State = StateStarting
	s.mu.Unlock()

	handle, err := s.rt.Spawn(ctx, runtime.Spec{
		Identity:   identity,
		BinaryPath: s.binPath,
	})
	if err != nil {
		s.mu.Lock()
		mp.proc.State = StateCrashed
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	mp.handle = handle
	mp.proc.PID = handle.ID
	mp.proc.State = StateRunning
	s.mu.Unlock()

	s.logger.Info("supervisor: identity started", "identity", identity, "pid", handle.ID)
	s.writeAudit(ctx, "process_start", identity, true, "")
	return nil
}

// watch blocks on the child's exit, then applies the restart policy:
// exponential backoff up to cfg.MaxRestarts, after which the identity is
// marked CRASHED and left stopped while the rest of the fleet keeps
// running.
func (s *Supervisor) watch(ctx context.Context, identity string) {
	for {
		s.mu.Lock()
		mp := s.procs[identity]
		handle := mp.handle
		s.mu.Unlock()

		exitCode, err := s.rt.Wait(ctx, handle)

		select {
		case <-s.stopCh:
			return
		default:
		}
		if err != nil {
			s.logger.Warn("supervisor: wait failed", "identity", identity, "error", err)
		}

		s.mu.Lock()
		mp.proc.ExitCode = exitCode
		restartCount := mp.proc.RestartCount
		s.mu.Unlock()

		if exitCode == 0 {
			s.mu.Lock()
			mp.proc.State = StateStopped
			s.mu.Unlock()
			s.writeAudit(ctx, "process_stop", identity, true, "")
			return
		}

		s.mu.Lock()
		mp.proc.State = StateCrashed
		s.mu.Unlock()
		s.writeAudit(ctx, "process_crash", identity, false, fmt.Sprintf("exit code %d", exitCode))

		if restartCount >= s.cfg.MaxRestarts {
			s.logger.Error("supervisor: restart cap reached, leaving identity crashed",
				"identity", identity, "restarts", restartCount)
			return
		}

		delay := retry.Backoff(restartCount, retry.Config{InitialDelay: baseBackoff, MaxDelay: maxBackoff})
		s.logger.Info("supervisor: restarting identity", "identity", identity, "delay", delay, "attempt", restartCount+1)

		select {
		case <-time.After(delay):
		case <-s.stopCh:
			return
		}

		s.mu.Lock()
		mp.proc.RestartCount++
		s.mu.Unlock()

		if err := s.spawn(ctx, identity); err != nil {
			s.logger.Error("supervisor: restart failed", "identity", identity, "error", err)
			s.writeAudit(ctx, "restart_failed", identity, false, err.Error())
			continue
		}
		s.writeAudit(ctx, "process_restart", identity, true, "")
	}
}

// Stop stops the IPC server and every running child, in that order, and
// closes the supervisor's audit log.
func (s *Supervisor) Stop(ctx context.Context) error {
	var errs []error
	s.stopOnce.Do(func() { close(s.stopCh) })

	if err := s.ipcSrv.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("ipc server: %w", err))
	}

	s.mu.Lock()
	handles := make(map[string]runtime.Handle, len(s.procs))
	for name, mp := range s.procs {
		if mp.proc.State == StateRunning {
			handles[name] = mp.handle
		}
	}
	s.mu.Unlock()

	for name, h := range handles {
		if err := s.rt.Stop(ctx, h, stopTimeout); err != nil {
			s.logger.Warn("supervisor: stop child failed", "identity", name, "error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
			continue
		}
		s.mu.Lock()
		s.procs[name].proc.State = StateStopped
		s.mu.Unlock()
	}

	s.writeAudit(ctx, "supervisor_stop", "", len(errs) == 0, "")
	if err := s.audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audit log: %w", err))
	}

	return errors.Join(errs...)
}

// AgentProcesses returns a point-in-time snapshot of every managed
// identity's state.
func (s *Supervisor) AgentProcesses() []AgentProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AgentProcess, 0, len(s.procs))
	for _, name := range s.cfg.Identities {
		out = append(out, s.procs[name].proc)
	}
	return out
}

func (s *Supervisor) writeAudit(ctx context.Context, action, identity string, success bool, errMsg string) {
	if _, err := s.audit.Log(ctx, audit.LogParams{
		Action:   action,
		Category: "supervisor",
		Identity: identity,
		Success:  success,
		Error:    errMsg,
	}); err != nil {
		s.logger.Error("supervisor: audit write failed", "action", action, "error", err)
	}
}

// handleIPC dispatches one validated, authenticated IPC message. Permission
// mediation in the baseline policy auto-approves every request and logs it;
// a hardened mode that queues requests for external decisioning is out of
// scope here.
func (s *Supervisor) handleIPC(ctx context.Context, msg ipc.Message) (ipc.Message, error) {
	switch msg.Type {
	case ipc.KindStatusRequest:
		return s.handleStatusRequest(msg)
	case ipc.KindPermissionRequest:
		return s.handlePermissionRequest(ctx, msg)
	case ipc.KindShutdown:
		s.stopOnce.Do(func() { close(s.stopCh) })
		return ipc.Message{Type: ipc.KindStatusResponse, Sender: "supervisor"}, nil
	default:
		return ipc.Message{}, fmt.Errorf("supervisor: unhandled message kind %q", msg.Type)
	}
}

type statusRequestPayload struct {
	Identity string `json:"identity"`
}

func (s *Supervisor) handleStatusRequest(msg ipc.Message) (ipc.Message, error) {
	var req statusRequestPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return ipc.Message{}, fmt.Errorf("supervisor: decode status_request: %w", err)
		}
	}

	s.mu.Lock()
	mp, ok := s.procs[req.Identity]
	var proc AgentProcess
	if ok {
		proc = mp.proc
	}
	s.mu.Unlock()

	if !ok {
		proc = AgentProcess{Identity: req.Identity, State: StateInit}
	}

	payload, err := json.Marshal(proc)
	if err != nil {
		return ipc.Message{}, fmt.Errorf("supervisor: encode status_response: %w", err)
	}
	return ipc.Message{Type: ipc.KindStatusResponse, Payload: payload, Sender: "supervisor"}, nil
}

type permissionRequestPayload struct {
	Identity string `json:"identity"`
	Action   string `json:"action"`
}

type permissionResponsePayload struct {
	Allowed bool `json:"allowed"`
}

func (s *Supervisor) handlePermissionRequest(ctx context.Context, msg ipc.Message) (ipc.Message, error) {
	var req permissionRequestPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return ipc.Message{}, fmt.Errorf("supervisor: decode permission_request: %w", err)
		}
	}

	// Baseline policy: auto-approve and log. Hardened external-decision
	// queuing is out of scope.
	allowed := true
	s.writeAudit(ctx, "permission_decision", req.Identity, allowed,
		fmt.Sprintf("action=%s allowed=%v", req.Action, allowed))

	payload, err := json.Marshal(permissionResponsePayload{Allowed: allowed})
	if err != nil {
		return ipc.Message{}, fmt.Errorf("supervisor: encode permission_response: %w", err)
	}
	return ipc.Message{Type: ipc.KindPermissionResponse, Payload: payload, Sender: "supervisor"}, nil
}
