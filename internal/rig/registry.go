package rig

import (
	"fmt"
	"sort"
	"sync"
)

// Config carries the binding-independent rig settings from the
// configuration file.
type Config struct {
	Type         string
	Address      string
	Capabilities Capabilities
}

// Factory constructs a Controller from its configuration.
type Factory func(cfg Config) (Controller, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a rig binding available under name. Concrete bindings
// (hamlib-style network clients, serial CAT adapters) register
// themselves in an init function; the simulated rig is always present.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("rig: duplicate binding registration for %q", name))
	}
	registry[name] = factory
}

// New constructs the Controller selected by cfg.Type.
func New(cfg Config) (Controller, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown rig type %q (registered: %v)", cfg.Type, registeredNames())
	}
	return factory(cfg)
}

func registeredNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
