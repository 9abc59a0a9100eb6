package plugin

import (
	"fmt"
	"regexp"
	"sync"
)

var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// entry pairs a registered collector with its enable flag. Registration is
// the only place a plugin is looked up from; no component may hold a
// long-lived reference bypassing the enabled check.
type entry struct {
	collector Collector
	enabled   bool
}

// Registry is a read-mostly, thread-safe map from plugin name to
// registration. Writes (Register, SetEnabled) take a write lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // registration order; the Scheduler's tie-break for
	// plugins due in the same instant
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a collector under its own Name(). It fails if a different
// instance is already registered under that name; registering the exact
// same instance again is a no-op (idempotent).
func (r *Registry) Register(c Collector) error {
	if c == nil {
		return fmt.Errorf("collector is nil")
	}
	name := c.Name()
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid plugin name %q: must match %s", name, namePattern.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[name]; ok {
		if existing.collector == c {
			return nil
		}
		return fmt.Errorf("plugin %q is already registered", name)
	}
	r.entries[name] = &entry{collector: c, enabled: true}
	r.order = append(r.order, name)
	return nil
}

// Get returns the collector registered under name.
func (r *Registry) Get(name string) (Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.collector, true
}

// Enabled reports whether the named plugin is both registered and enabled.
func (r *Registry) Enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.enabled
}

// SetEnabled toggles a plugin's enabled flag. It returns an error if the
// plugin is not registered.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("plugin %q is not registered", name)
	}
	e.enabled = enabled
	return nil
}

// List returns registered plugin names in registration order — the same
// order the Scheduler uses to break ties between plugins due in the same
// instant. When enabledOnly is true, disabled plugins are omitted.
func (r *Registry) List(enabledOnly bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		if enabledOnly && !e.enabled {
			continue
		}
		names = append(names, name)
	}
	return names
}
