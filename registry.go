package runjs

import (
	"sort"
	"sync"

	"github.com/shiroyk/runjs/engine"
	"github.com/shiroyk/runjs/errs"
)

// Registry maps backend names to backends. It is built once and passed
// to whatever creates sessions.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]engine.Backend
}

// NewRegistry returns a Registry holding the backends.
// A later backend replaces an earlier one with the same name.
func NewRegistry(backends ...engine.Backend) *Registry {
	r := &Registry{backends: make(map[string]engine.Backend, len(backends))}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds the backend under its name.
func (r *Registry) Register(b engine.Backend) {
	if b == nil {
		panic("runjs: backend is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns the backend with the given name.
func (r *Registry) Get(name string) (engine.Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Names returns the sorted backend names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns a Session running on the named backend.
// An unknown name is an errs.ArgumentError.
func (r *Registry) New(name string, opt Options) (*Session, error) {
	b, ok := r.Get(name)
	if !ok {
		return nil, errs.New(errs.ArgumentError, "unknown backend %q, available: %v", name, r.Names())
	}
	return NewSession(b, opt)
}
