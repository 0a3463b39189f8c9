package runtime

import (
	"github.com/modelctl/mcprun/pkg/interfaces"
	"github.com/modelctl/mcprun/pkg/modules/auth"
	"github.com/modelctl/mcprun/pkg/modules/system"
)

// RegisterBuiltins adds the factories for the modules every runtime
// ships with. Call before Initialize.
func RegisterBuiltins(r *Runtime) error {
	if err := r.RegisterModuleFactory(system.ModuleName, func(deps ModuleDeps) (interfaces.Module, error) {
		return system.New(deps.Logger, deps.Metrics, deps.Security, r.ListModules), nil
	}); err != nil {
		return err
	}
	return r.RegisterModuleFactory(auth.ModuleName, func(deps ModuleDeps) (interfaces.Module, error) {
		return auth.New(deps.Logger, deps.Metrics, deps.Security), nil
	})
}
