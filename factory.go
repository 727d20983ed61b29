package ingestkit

import (
	"fmt"
	"sort"
	"sync"
)

// TransportFactory is a function that creates a Transport from a config
type TransportFactory func(cfg *Config) (Transport, error)

var (
	transportFactories = make(map[string]TransportFactory)
	factoryMutex       sync.RWMutex
)

// RegisterTransport registers a transport factory function
func RegisterTransport(name string, factory TransportFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	transportFactories[name] = factory
}

// CreateTransport creates a transport instance from config
func CreateTransport(cfg *Config) (Transport, error) {
	factoryMutex.RLock()
	factory, exists := transportFactories[cfg.Driver]
	factoryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("driver %s not registered", cfg.Driver)
	}

	return factory(cfg)
}

// Drivers returns the registered driver names in sorted order.
func Drivers() []string {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()
	names := make([]string, 0, len(transportFactories))
	for name := range transportFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CacheFactory is a function that creates a ResultCache from a config
type CacheFactory func(cfg *Config) (ResultCache, error)

var cacheFactories = make(map[string]CacheFactory)

// RegisterCache registers a shared result cache backend
func RegisterCache(name string, factory CacheFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	cacheFactories[name] = factory
}

// CreateCache creates a registered result cache backend
func CreateCache(name string, cfg *Config) (ResultCache, error) {
	factoryMutex.RLock()
	factory, exists := cacheFactories[name]
	factoryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("cache %s not registered", name)
	}

	return factory(cfg)
}
