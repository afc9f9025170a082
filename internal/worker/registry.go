package worker

import (
	"log/slog"
	"sync"
)

// Registry maps job_type strings to handlers. It is the engine's only
// extension point: new job types are added by registration, never by
// modifying the run loop.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates h with jobType. Registering the same type twice
// replaces the previous handler and logs a warning — each job type is meant
// to be registered exactly once.
func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobType]; exists {
		slog.Warn("job handler re-registered, replacing", "job_type", jobType)
	}
	r.handlers[jobType] = h
}

// Resolve returns the handler for jobType, if one is registered.
func (r *Registry) Resolve(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types. Order is unspecified.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
