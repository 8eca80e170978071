// Package plugin implements the whitelisted Plugin Host: a fixed,
// compile-time registry mapping plugin names to constructors, the
// PluginContext capability handle, and per-plugin isolated data/log
// directories.
//
// Per spec.md §9, dynamic module import is replaced by a compile-time
// registry map; the whitelist behavior (unknown names cannot load) is
// preserved. PluginContext is styled after the teacher's control.Handlers
// callback-bundle pattern (internal/gitai/control/server.go), generalized
// from an HTTP-handler bundle to a capability handle passed into plugin
// constructors.
package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/silverreef/agentcore/internal/core/audit"
	"github.com/silverreef/agentcore/internal/core/eventbus"
	"github.com/silverreef/agentcore/internal/core/identity"
	"github.com/silverreef/agentcore/internal/core/permission"
	"github.com/silverreef/agentcore/internal/core/pipeline"
	"github.com/silverreef/agentcore/internal/core/quiethours"
	"github.com/silverreef/agentcore/internal/core/scheduler"
)

// Plugin is the lifecycle contract every whitelisted plugin implements.
// Setup must complete before Tick is scheduled; Tick is the only entry
// point for periodic work; Teardown runs once on shutdown.
type Plugin interface {
	Setup(ctx context.Context) error
	Tick(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// SecretsAccessor reads one secret value for the plugin's identity. Plugins
// never see the secrets store directly, only this narrow accessor.
type SecretsAccessor func(key string) (string, bool, error)

// Context is the sole framework-facing object given to a plugin. It is
// built once per plugin instance by the orchestrator and lives for the
// plugin's lifetime; nothing on it is mutable after construction.
//
// Plugins are forbidden from importing core internals beyond this handle:
// all capability access — LLM calls, events, scheduling, audit, secrets,
// permission checks, quiet-hours — flows through Context.
type Context struct {
	IdentityName string
	DataDir      string
	LogDir       string

	SafePipeline *pipeline.Pipeline
	EventBus     *eventbus.Bus
	Scheduler    *scheduler.Scheduler
	Audit        *audit.Log
	QuietHours   *quiethours.Gate
	Permission   *permission.Checker
	Identity     *identity.Identity
	Secrets      SecretsAccessor

	// Capabilities is a shared, read-only capability table populated by the
	// orchestrator (e.g. connector clients for whitelisted connectors).
	// Plugins type-assert the value they expect.
	Capabilities map[string]any
}

// Constructor builds one plugin instance given its context.
type Constructor func(ctx *Context) (Plugin, error)

// whitelist is the fixed, compile-time name -> constructor table. Only
// names present here may ever be loaded; this is spec.md §9's replacement
// for runtime module import.
var (
	whitelistMu sync.RWMutex
	whitelist   = map[string]Constructor{
		"heartbeat": newHeartbeatPlugin,
		"echo":      newEchoPlugin,
	}
)

// Register adds or overrides a whitelist entry. This exists so tests can
// install fakes under a reserved name; it is not a general-purpose plugin
// marketplace hook — production identities may still only name whitelisted
// connectors (identity.Load rejects anything else before Host.Load is ever
// reached).
func Register(name string, ctor Constructor) {
	whitelistMu.Lock()
	defer whitelistMu.Unlock()
	whitelist[name] = ctor
}

// AvailablePlugins lists the current whitelist keys.
func AvailablePlugins() []string {
	whitelistMu.RLock()
	defer whitelistMu.RUnlock()
	names := make([]string, 0, len(whitelist))
	for n := range whitelist {
		names = append(names, n)
	}
	return names
}

// Host instantiates whitelisted plugins for one identity, isolating each
// plugin's data directory under {root}/{identity}/{plugin} and sharing a
// log directory at {root}/{identity}.
type Host struct {
	identity string
	dataRoot string
	logRoot  string

	mu      sync.Mutex
	loaded  map[string]Plugin
	order   []string
}

// NewHost constructs a Host for one identity, rooted at dataRoot/logRoot
// (typically {root}/data and {root}/logs from spec.md §6's filesystem
// layout).
func NewHost(identityName, dataRoot, logRoot string) *Host {
	return &Host{
		identity: identityName,
		dataRoot: dataRoot,
		logRoot:  logRoot,
		loaded:   make(map[string]Plugin),
	}
}

// Load looks up name in the whitelist, builds its isolated directories and
// Context, constructs the plugin, and stores it under name. It does not
// call Setup — the orchestrator calls Setup on each plugin right after
// loading it, in declared order.
func (h *Host) Load(name string, base *Context) (Plugin, error) {
	whitelistMu.RLock()
	ctor, ok := whitelist[name]
	whitelistMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugin: %q is not in the whitelist", name)
	}

	dataDir := filepath.Join(h.dataRoot, h.identity, name)
	logDir := filepath.Join(h.logRoot, h.identity)
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("plugin %s: create data dir: %w", name, err)
	}
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return nil, fmt.Errorf("plugin %s: create log dir: %w", name, err)
	}

	pctx := *base
	pctx.DataDir = dataDir
	pctx.LogDir = logDir

	p, err := ctor(&pctx)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: construct: %w", name, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.loaded[name] = p
	h.order = append(h.order, name)
	return p, nil
}

// Get returns the loaded plugin instance for name, if any.
func (h *Host) Get(name string) (Plugin, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.loaded[name]
	return p, ok
}

// Loaded returns loaded plugin names in load order.
func (h *Host) Loaded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

// TeardownAll runs Teardown on every loaded plugin in reverse load order,
// per spec.md §4.14's reverse shutdown order. Errors are collected, not
// short-circuited: one plugin's teardown failure must not skip another's.
func (h *Host) TeardownAll(ctx context.Context) []error {
	h.mu.Lock()
	order := append([]string(nil), h.order...)
	h.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		h.mu.Lock()
		p := h.loaded[name]
		h.mu.Unlock()
		if p == nil {
			continue
		}
		if err := p.Teardown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("plugin %s: teardown: %w", name, err))
		}
	}
	return errs
}
