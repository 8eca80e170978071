package llmbackend

import "fmt"

// Router resolves a backend name from an optional explicit override plus
// declared complexity/priority, per spec's precedence rules: explicit >
// complexity=reasoning (hosted reasoning model only) > complexity=ultra/high
// (prefers hosted or cloud) > complexity=low (prefers local) >
// priority=high+cloud-available (cloud) > default.
type Router struct {
	registry *Registry
}

// NewRouter constructs a Router over registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Registry returns the registry this router resolves against.
func (r *Router) Registry() *Registry {
	return r.registry
}

// ResolveBackend returns the backend name to use for one chat call.
func (r *Router) ResolveBackend(explicit string, complexity Complexity, priority Priority) (string, error) {
	if explicit != "" {
		if _, ok := r.registry.GetClient(explicit); !ok {
			return "", fmt.Errorf("llmbackend: explicit backend %q not registered", explicit)
		}
		return explicit, nil
	}

	if complexity == ComplexityReasoning {
		if name, ok := r.registry.firstMatching(func(c Config) bool { return c.IsReasoning && c.Kind == KindHosted }); ok {
			return name, nil
		}
	}

	if complexity == ComplexityUltra || complexity == ComplexityHigh {
		if name, ok := r.registry.firstMatching(func(c Config) bool { return c.Kind == KindHosted }); ok {
			return name, nil
		}
		if name, ok := r.registry.firstMatching(func(c Config) bool { return c.IsCloud }); ok {
			return name, nil
		}
	}

	if complexity == ComplexityLow {
		if name, ok := r.registry.firstMatching(func(c Config) bool { return c.Kind == KindLocal }); ok {
			return name, nil
		}
	}

	if priority == PriorityHigh {
		if name, ok := r.registry.firstMatching(func(c Config) bool { return c.IsCloud }); ok {
			return name, nil
		}
	}

	def := r.registry.DefaultBackend()
	if def == "" {
		return "", fmt.Errorf("llmbackend: no backends registered")
	}
	return def, nil
}
