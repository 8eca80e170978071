package llmbackend

import (
	"context"
	"fmt"
	"sync"
)

// Registry holds zero or more configured backends, addressed by name.
type Registry struct {
	mu             sync.RWMutex
	backends       map[string]Backend
	configs        map[string]Config
	defaultBackend string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		configs:  make(map[string]Config),
	}
}

// Register adds a backend under name, constructing it from cfg. The first
// registered backend becomes the default unless SetDefault is called later.
func (r *Registry) Register(cfg Config) error {
	backend, err := NewHTTPBackend(cfg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[cfg.Name] = backend
	r.configs[cfg.Name] = cfg
	if r.defaultBackend == "" {
		r.defaultBackend = cfg.Name
	}
	return nil
}

// SetDefault overrides which backend name Router.ResolveBackend falls back to.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[name]; !ok {
		return fmt.Errorf("llmbackend: unknown backend %q", name)
	}
	r.defaultBackend = name
	return nil
}

// GetClient returns the named backend.
func (r *Registry) GetClient(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// DefaultBackend returns the registry's default backend name.
func (r *Registry) DefaultBackend() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultBackend
}

// Names returns all registered backend names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for n := range r.backends {
		names = append(names, n)
	}
	return names
}

// HealthCheckAll runs HealthCheck on every registered backend.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]bool {
	r.mu.RLock()
	snapshot := make(map[string]Backend, len(r.backends))
	for n, b := range r.backends {
		snapshot[n] = b
	}
	r.mu.RUnlock()

	results := make(map[string]bool, len(snapshot))
	for n, b := range snapshot {
		results[n] = b.HealthCheck(ctx)
	}
	return results
}

// CloseAll closes every registered backend's underlying transport.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, b := range r.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// firstMatching returns the name of a registered backend whose Config
// satisfies pred, for the router's kind-based rules. Backends are scanned in
// map order, so when several match, which one is returned is not defined.
func (r *Registry) firstMatching(pred func(Config) bool) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, cfg := range r.configs {
		if pred(cfg) {
			return name, true
		}
	}
	return "", false
}
