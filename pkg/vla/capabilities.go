package vla

import (
	"sort"
	"sync"
)

// CapabilityRegistry tracks the schema and safety classification of the VLA
// capabilities a Service can dispatch to.
type CapabilityRegistry struct {
	mu           sync.Mutex
	capabilities map[string]CapabilityDescriptor
}

// NewCapabilityRegistry returns an empty registry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{capabilities: make(map[string]CapabilityDescriptor)}
}

// RegisterCapability adds or replaces a capability descriptor. It panics if
// descriptor.Name is empty.
func (r *CapabilityRegistry) RegisterCapability(descriptor CapabilityDescriptor) {
	if descriptor.Name == "" {
		panic("register_capability: capability name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[descriptor.Name] = descriptor
}

// List returns the registered capability names in sorted order.
func (r *CapabilityRegistry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Describe returns the descriptor registered under name, if any.
func (r *CapabilityRegistry) Describe(name string) (CapabilityDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.capabilities[name]
	return d, ok
}
