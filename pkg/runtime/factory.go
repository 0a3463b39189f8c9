package runtime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/modelctl/mcprun/pkg/errors"
	"github.com/modelctl/mcprun/pkg/interfaces"
	"github.com/modelctl/mcprun/pkg/security"
)

// ModuleDeps carries the runtime facilities a module constructor may use.
// Security is nil when the runtime was configured with security disabled.
type ModuleDeps struct {
	Logger   interfaces.Logger
	Metrics  interfaces.Metrics
	Security *security.Manager
}

// ModuleFactory constructs a fresh, uninitialized module instance.
type ModuleFactory func(deps ModuleDeps) (interfaces.Module, error)

// FactoryRegistry maps module names to their constructors. Built-in
// modules register here so the runtime can instantiate them by name.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]ModuleFactory
}

// NewFactoryRegistry creates an empty factory registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]ModuleFactory)}
}

// Register adds a factory under the given name. Registering a name twice
// is a programming error and is rejected.
func (r *FactoryRegistry) Register(name string, factory ModuleFactory) error {
	if name == "" {
		return errors.NewValidationError("module factory name cannot be empty")
	}
	if factory == nil {
		return errors.NewValidationError(fmt.Sprintf("module factory %q cannot be nil", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.NewAlreadyExistsError(fmt.Sprintf("module factory %q already registered", name))
	}
	r.factories[name] = factory
	return nil
}

// Get returns the factory registered under name, or nil.
func (r *FactoryRegistry) Get(name string) ModuleFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factories[name]
}

// Names returns the registered factory names in sorted order.
func (r *FactoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
