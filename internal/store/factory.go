package store

import (
	"fmt"
	"sort"
	"sync"
)

// Builder is a function that creates a store from config.
type Builder func(config Config) (Store, error)

// DefaultFactory maps config type strings to store builders.
type DefaultFactory struct {
	builders map[string]Builder
	mu       sync.RWMutex
}

var globalFactory = &DefaultFactory{
	builders: make(map[string]Builder),
}

func init() {
	RegisterStoreType("sqlite", func(config Config) (Store, error) {
		return NewSQLite(config.Path)
	})
	RegisterStoreType("postgres", func(config Config) (Store, error) {
		return NewPostgres(config)
	})
	RegisterStoreType("postgresql", func(config Config) (Store, error) {
		return NewPostgres(config)
	})
	RegisterStoreType("memory", func(_ Config) (Store, error) {
		return NewMemory(), nil
	})
}

// RegisterStoreType registers a new store type with the global factory.
func RegisterStoreType(storeType string, builder Builder) {
	globalFactory.RegisterStoreType(storeType, builder)
}

// New creates a store using the global factory. An empty type defaults to
// sqlite.
func New(config Config) (Store, error) {
	return globalFactory.CreateStore(config)
}

// SupportedTypes returns supported store types from the global factory.
func SupportedTypes() []string {
	return globalFactory.SupportedTypes()
}

// RegisterStoreType registers a new store type.
func (f *DefaultFactory) RegisterStoreType(storeType string, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[storeType] = builder
}

// CreateStore creates a store based on the configuration.
func (f *DefaultFactory) CreateStore(config Config) (Store, error) {
	storeType := config.Type
	if storeType == "" {
		storeType = "sqlite"
	}

	f.mu.RLock()
	builder, ok := f.builders[storeType]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported store type %q (supported: %v)", storeType, f.SupportedTypes())
	}
	return builder(config)
}

// SupportedTypes returns the registered store type names.
func (f *DefaultFactory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
