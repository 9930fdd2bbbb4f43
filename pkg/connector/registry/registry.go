package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// Registry manages connector registration and instantiation
type Registry struct {
	sources map[string]SourceFactory
	mu      sync.RWMutex
}

// SourceFactory is a function that creates source connector instances.
// It takes the source configuration and returns a configured Source or an error.
type SourceFactory func(cfg *config.SourceConfig, logger *zap.Logger) (core.Source, error)

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]SourceFactory)}
}

// RegisterSource registers a source connector factory
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source connector %s already registered", name))
	}
	r.sources[name] = factory
	return nil
}

// CreateSource creates a source connector instance
func (r *Registry) CreateSource(name string, cfg *config.SourceConfig, logger *zap.Logger) (core.Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source connector %s not found", name))
	}

	source, err := factory(cfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create source connector %s", name))
	}
	return source, nil
}

// ListSources returns the registered source connectors in name order
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.sources))
	for name := range r.sources {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// RegisterSource registers a source connector in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// CreateSource creates a source connector from the global registry
func CreateSource(name string, cfg *config.SourceConfig, logger *zap.Logger) (core.Source, error) {
	return globalRegistry.CreateSource(name, cfg, logger)
}

// ListSources lists source connectors in the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}
