package cloakkit

import (
	"fmt"
	"sort"
	"sync"
)

// DriverFactory is a function that creates a FileSystem from a config
type DriverFactory func(cfg *Config) (FileSystem, error)

var (
	driverFactories = make(map[string]DriverFactory)
	factoryMutex    sync.RWMutex
)

// RegisterDriver registers a driver factory function. Drivers call it from
// init, so importing a driver package is enough to make it available.
func RegisterDriver(name string, factory DriverFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	driverFactories[name] = factory
}

// CreateDriver creates a driver instance from config
func CreateDriver(cfg *Config) (FileSystem, error) {
	factoryMutex.RLock()
	factory, exists := driverFactories[cfg.Driver]
	factoryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: driver %s not registered", ErrNotSupported, cfg.Driver)
	}

	return factory(cfg)
}

// Drivers returns the names of all registered drivers, sorted.
func Drivers() []string {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()

	names := make([]string, 0, len(driverFactories))
	for name := range driverFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
