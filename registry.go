package fabrica

import (
	"fmt"
	"sort"
	"sync"
)

// Registry stores factories by name, mainly for deferred by-name references
// and declarative front ends that derive factories at load time.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Factory),
	}
}

// Register stores one factory under a unique name.
func (r *Registry) Register(name string, f *Factory) error {
	if name == "" {
		return fmt.Errorf("register factory: name is empty")
	}
	if f == nil {
		return fmt.Errorf("register factory %q: factory is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("register factory: duplicate name %q", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister panics on registration error; intended for test bootstrap.
func (r *Registry) MustRegister(name string, f *Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Lookup returns a registered factory by name.
func (r *Registry) Lookup(name string) (*Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
