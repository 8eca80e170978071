// Package orchestrator implements the per-identity lifecycle manager:
// loading configuration, wiring the security substrate and safe pipeline,
// loading plugins, and running until a shutdown signal.
//
// The construction/lifecycle/signal-handling shape (os/signal +
// syscall.SIGINT/SIGTERM, ordered setup/teardown) is grounded on the
// teacher's internal/gitai/app.App.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/silverreef/agentcore/internal/core/audit"
	"github.com/silverreef/agentcore/internal/core/eventbus"
	"github.com/silverreef/agentcore/internal/core/identity"
	"github.com/silverreef/agentcore/internal/core/llmbackend"
	"github.com/silverreef/agentcore/internal/core/outputsafety"
	"github.com/silverreef/agentcore/internal/core/permission"
	"github.com/silverreef/agentcore/internal/core/pipeline"
	"github.com/silverreef/agentcore/internal/core/plugin"
	"github.com/silverreef/agentcore/internal/core/preflight"
	"github.com/silverreef/agentcore/internal/core/quiethours"
	"github.com/silverreef/agentcore/internal/core/ratelimit"
	"github.com/silverreef/agentcore/internal/core/scheduler"
	"github.com/silverreef/agentcore/internal/core/secrets"
)

// Layout mirrors spec.md §6's filesystem layout, rooted at one directory.
type Layout struct {
	Root string
}

func (l Layout) configDir() string        { return filepath.Join(l.Root, "config") }
func (l Layout) secretsDir() string        { return filepath.Join(l.Root, "config", "secrets") }
func (l Layout) dataRoot() string          { return filepath.Join(l.Root, "data") }
func (l Layout) logRoot() string           { return filepath.Join(l.Root, "logs") }
func (l Layout) identityDataDir(n string) string { return filepath.Join(l.dataRoot(), n) }
func (l Layout) identityLogDir(n string) string  { return filepath.Join(l.logRoot(), n) }
func (l Layout) auditDBPath(n string) string     { return filepath.Join(l.identityDataDir(n), "audit.db") }

// IdentityConfigPath returns where Load expects to find {name}'s YAML.
func (l Layout) IdentityConfigPath(name string) string {
	return filepath.Join(l.configDir(), "identities", name+".yaml")
}

// PersonaConfigPath returns where Load looks for {name}'s optional persona.
func (l Layout) PersonaConfigPath(name string) string {
	return filepath.Join(l.configDir(), "personas", name+".yaml")
}

// Config configures one Orchestrator instance.
type Config struct {
	Layout   Layout
	Identity string
	Backends []llmbackend.Config
	Logger   *slog.Logger
}

// Orchestrator is the per-identity lifecycle manager: §4.14's strict setup
// order constructs exactly one of these per identity process.
type Orchestrator struct {
	cfg      Config
	logger   *slog.Logger
	identity *identity.Identity
	persona  *identity.Persona

	secrets    *secrets.Store
	audit      *audit.Log
	quietHours *quiethours.Gate
	registry   *llmbackend.Registry
	router     *llmbackend.Router
	preflight  *preflight.Checker
	output     *outputsafety.Filter
	ratelimit  *ratelimit.Limiter
	pipeline   *pipeline.Pipeline
	permission *permission.Checker
	eventBus   *eventbus.Bus
	scheduler  *scheduler.Scheduler
	pluginHost *plugin.Host

	shutdownOnce chan struct{}
}

// New constructs an Orchestrator for cfg.Identity but does not run it.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, logger: logger, shutdownOnce: make(chan struct{})}
}

// Run executes the full setup → serve → shutdown lifecycle and blocks until
// termination (SIGINT/SIGTERM or ctx cancellation).
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.setup(ctx); err != nil {
		return fmt.Errorf("orchestrator: setup: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o.logger.Info("orchestrator running", "identity", o.identity.Name())
	<-sigCtx.Done()

	o.shutdown(context.Background())
	return nil
}

// setup implements spec.md §4.14's strict setup order.
func (o *Orchestrator) setup(ctx context.Context) error {
	// 1. load identity
	id, err := identity.Load(o.cfg.Layout.IdentityConfigPath(o.cfg.Identity))
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	o.identity = id

	if p, err := identity.LoadPersona(o.cfg.Layout.PersonaConfigPath(o.cfg.Identity)); err == nil {
		o.persona = p
	} else if !os.IsNotExist(err) {
		o.logger.Warn("persona load failed, continuing without one", "error", err)
	}

	// 2. create data/log paths
	dataDir := o.cfg.Layout.identityDataDir(id.Name())
	logDir := o.cfg.Layout.identityLogDir(id.Name())
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	// 3. open secrets + audit
	secretsStore, err := secrets.Open(o.cfg.Layout.secretsDir())
	if err != nil {
		return fmt.Errorf("open secrets: %w", err)
	}
	o.secrets = secretsStore

	auditLog, err := audit.Open(o.cfg.Layout.auditDBPath(id.Name()))
	if err != nil {
		return fmt.Errorf("open audit: %w", err)
	}
	o.audit = auditLog

	// 4. build quiet-hours gate
	qh := id.QuietHours()
	gate, err := quiethours.New(quiethours.Config{
		Enabled:   qh.Enabled,
		Timezone:  qh.Timezone,
		StartHour: qh.StartHour,
		EndHour:   qh.EndHour,
	})
	if err != nil {
		return fmt.Errorf("build quiet-hours gate: %w", err)
	}
	o.quietHours = gate

	// 5. create backend client(s)
	o.registry = llmbackend.NewRegistry()
	for _, bc := range o.cfg.Backends {
		if err := o.registry.Register(bc); err != nil {
			return fmt.Errorf("register backend %s: %w", bc.Name, err)
		}
	}
	o.router = llmbackend.NewRouter(o.registry)

	// 6. create preflight/output-safety/rate-limiter
	sec := id.Security()
	admins := make(map[string]bool, len(sec.AdminUserIDs))
	for _, a := range sec.AdminUserIDs {
		admins[a] = true
	}
	if sec.EnablePreflight {
		o.preflight = preflight.New(preflight.Config{
			AdminUserIDs: admins,
			Deflection:   sec.Deflection,
		})
	}
	traits := outputsafety.IdentityTraits{DisplayName: id.DisplayName()}
	if o.persona != nil {
		banned := make(map[string]string)
		for _, w := range o.persona.BannedVocabulary() {
			banned[w] = ""
		}
		traits.BannedVocabulary = banned
	}
	if sec.EnableOutputSafety {
		o.output = outputsafety.New(id.Name(), traits)
	}
	o.ratelimit = ratelimit.New(ratelimit.Config{
		MaxTokens:  sec.RateLimiterMaxTokens,
		RefillRate: sec.RateLimiterRefillRate,
	})

	// 7. build safe pipeline
	o.pipeline = &pipeline.Pipeline{
		Preflight:    o.preflight,
		RateLimiter:  o.ratelimit,
		Router:       o.router,
		OutputSafety: o.output,
		Audit:        o.audit,
		Identity:     id.Name(),
		AdminUserIDs: admins,
		Logger:       o.logger,
	}

	// 8. build capabilities
	o.permission = permission.New(buildPermissionRules(id))
	o.eventBus = eventbus.New(o.logger)
	o.scheduler = scheduler.New(o.logger)

	// 9. load plugins (in declared order) and call setup() on each
	o.pluginHost = plugin.NewHost(id.Name(), o.cfg.Layout.dataRoot(), o.cfg.Layout.logRoot())
	base := &plugin.Context{
		IdentityName: id.Name(),
		SafePipeline: o.pipeline,
		EventBus:     o.eventBus,
		Scheduler:    o.scheduler,
		Audit:        o.audit,
		QuietHours:   o.quietHours,
		Permission:   o.permission,
		Identity:     id,
		Secrets: func(key string) (string, bool, error) {
			return o.secrets.Get(id.Name(), key)
		},
		Capabilities: make(map[string]any),
	}
	for _, name := range id.Connectors() {
		p, err := o.pluginHost.Load(name, base)
		if err != nil {
			return fmt.Errorf("load plugin %s: %w", name, err)
		}
		if err := p.Setup(ctx); err != nil {
			return fmt.Errorf("setup plugin %s: %w", name, err)
		}
	}

	// 10. register each plugin's tick() with the scheduler
	heartbeatInterval := durationFromHours(id.Schedule().HeartbeatHours)
	for _, name := range o.pluginHost.Loaded() {
		p, _ := o.pluginHost.Get(name)
		if err := o.scheduler.Add(name, func(ctx context.Context) error {
			return p.Tick(ctx)
		}, heartbeatInterval, false); err != nil {
			return fmt.Errorf("schedule plugin %s: %w", name, err)
		}
	}

	// 11. start scheduler (shutdown-signal listener is installed by Run)
	o.scheduler.Start()

	dur := int64(0)
	_, _ = o.audit.Log(ctx, audit.LogParams{
		Action:     "orchestrator_start",
		Category:   "lifecycle",
		Identity:   id.Name(),
		Success:    true,
		DurationMS: &dur,
	})

	return nil
}

// shutdown implements spec.md §4.14's reverse shutdown order.
func (o *Orchestrator) shutdown(ctx context.Context) {
	o.logger.Info("orchestrator shutting down", "identity", o.identityName())

	if o.scheduler != nil {
		o.scheduler.Stop()
	}
	if o.pluginHost != nil {
		for _, err := range o.pluginHost.TeardownAll(ctx) {
			o.logger.Error("plugin teardown failed", "error", err)
		}
	}
	if o.registry != nil {
		if err := o.registry.CloseAll(); err != nil {
			o.logger.Error("close backends failed", "error", err)
		}
	}
	if o.audit != nil {
		_, _ = o.audit.Log(ctx, audit.LogParams{
			Action:   "orchestrator_stop",
			Category: "lifecycle",
			Identity: o.identityName(),
			Success:  true,
		})
		if err := o.audit.Close(); err != nil {
			o.logger.Error("close audit failed", "error", err)
		}
	}
	if o.eventBus != nil {
		o.eventBus.Clear()
	}
}

func (o *Orchestrator) identityName() string {
	if o.identity == nil {
		return o.cfg.Identity
	}
	return o.identity.Name()
}

func buildPermissionRules(id *identity.Identity) map[string]permission.Rule {
	rules := make(map[string]permission.Rule)
	for action, r := range id.Permissions() {
		rules[action] = permission.Rule{
			Allowed:          r.Allowed,
			MaxPerHour:       r.MaxPerHour,
			CooldownSeconds:  r.CooldownSeconds,
			RequiresApproval: r.RequiresApproval,
		}
	}
	return rules
}

func durationFromHours(hours float64) time.Duration {
	if hours <= 0 {
		hours = 4
	}
	return time.Duration(hours * float64(time.Hour))
}
