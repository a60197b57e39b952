package config

import (
	"os"
	"sort"
	"sync"
)

// Source supplies configuration values by key.
type Source interface {
	// Lookup returns the value for key and whether the source defines it.
	Lookup(key string) (string, bool)
}

// EnvSource reads values from the process environment.
type EnvSource struct{}

// Lookup implements Source.
func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource is a fixed set of values.
type MapSource map[string]string

// Lookup implements Source.
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Registry collects values that are only known at runtime, such as the
// endpoint of a container started for a test run. Values are resolved
// lazily through suppliers when the registry is consulted.
// Registry takes precedence over every other layer when passed to Load.
type Registry struct {
	mu        sync.Mutex
	suppliers map[string]func() string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{suppliers: make(map[string]func() string)}
}

// Add registers supplier for key, replacing any earlier supplier.
func (r *Registry) Add(key string, supplier func() string) {
	if supplier == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suppliers[key] = supplier
}

// Lookup implements Source.
func (r *Registry) Lookup(key string) (string, bool) {
	r.mu.Lock()
	supplier, ok := r.suppliers[key]
	r.mu.Unlock()
	if !ok {
		return "", false
	}
	return supplier(), true
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.suppliers))
	for k := range r.suppliers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.suppliers)
}

// Snapshot resolves every supplier and returns the resulting values.
func (r *Registry) Snapshot() map[string]string {
	snapshot := make(map[string]string, r.Len())
	for _, k := range r.Keys() {
		if v, ok := r.Lookup(k); ok {
			snapshot[k] = v
		}
	}
	return snapshot
}
