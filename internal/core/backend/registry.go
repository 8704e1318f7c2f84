package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrAlreadyRegistered is returned when a name is registered twice.
var ErrAlreadyRegistered = errors.New("backend already registered")

// Registry maps backend names to descriptors. It is filled by explicit
// Register calls at startup.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Descriptor)}
}

// Register adds a descriptor under its name.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := d.Name()
	if _, ok := r.backends[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.backends[name] = d
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.backends[name]
	return d, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Default is the process-wide registry built-in backends register into.
var Default = NewRegistry()

// MustRegister registers d into Default and panics on a duplicate name.
// Meant for package init functions.
func MustRegister(d Descriptor) {
	if err := Default.Register(d); err != nil {
		panic(err)
	}
}
