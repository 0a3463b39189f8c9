package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modelctl/mcprun/pkg/config"
	"github.com/modelctl/mcprun/pkg/errors"
	"github.com/modelctl/mcprun/pkg/interfaces"
	"github.com/modelctl/mcprun/pkg/logger"
	"github.com/modelctl/mcprun/pkg/metrics"
	"github.com/modelctl/mcprun/pkg/security"
	"github.com/modelctl/mcprun/pkg/types"
)

// State tracks the runtime lifecycle. Transitions only move forward:
// uninitialized -> initialized -> shutdown.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

const securityConfigFile = "security.json"
const usersFile = "users.json"

// Runtime owns the module registry, the security manager and the plugin
// set, and dispatches parsed command invocations to modules.
type Runtime struct {
	config    *config.RuntimeConfig
	logger    interfaces.Logger
	metrics   interfaces.Metrics
	factories *FactoryRegistry

	mu            sync.RWMutex
	state         State
	security      *security.Manager
	modules       map[string]interfaces.Module
	plugins       []interfaces.Plugin
	pluginModules map[string][]string
}

// New creates a runtime around the given configuration. A nil config is
// replaced with defaults at Initialize time; a nil logger or metrics
// collector falls back to the package defaults.
func New(cfg *config.RuntimeConfig, log interfaces.Logger, met interfaces.Metrics) *Runtime {
	if log == nil {
		log = logger.NewLogger()
	}
	if met == nil {
		met = metrics.NewNoOpMetrics()
	}
	return &Runtime{
		config:        cfg,
		logger:        log,
		metrics:       met,
		factories:     NewFactoryRegistry(),
		modules:       make(map[string]interfaces.Module),
		pluginModules: make(map[string][]string),
	}
}

// RegisterModuleFactory exposes the factory registry so callers can add
// module constructors before Initialize runs.
func (r *Runtime) RegisterModuleFactory(name string, factory ModuleFactory) error {
	return r.factories.Register(name, factory)
}

// Initialize prepares directories, boots the security manager and loads
// every registered built-in module, forwarding options to each module's
// setup. Calling Initialize on an already
// initialized runtime is a logged no-op; calling it after Shutdown is an
// error.
func (r *Runtime) Initialize(ctx context.Context, options types.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateInitialized:
		r.logger.Warn("runtime already initialized")
		return nil
	case StateShutdown:
		return errors.NewShutdownError("runtime")
	}

	cfg := r.config
	if cfg == nil {
		cfg = config.DefaultRuntimeConfig()
	}
	cfg.Merge(config.DefaultRuntimeConfig())
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.config = cfg

	for _, dir := range []string{cfg.LogDir, cfg.ConfigDir, cfg.ModulesDir, cfg.PluginsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewPersistenceError(fmt.Sprintf("failed to create directory %s", dir), err)
		}
	}

	if cfg.SecurityEnabled {
		if err := r.initSecurity(); err != nil {
			return err
		}
	}

	r.loadBuiltinsLocked(ctx, options)

	r.state = StateInitialized
	r.logger.Info("runtime initialized", map[string]interface{}{
		"modules":  len(r.modules),
		"security": cfg.SecurityEnabled,
	})
	return nil
}

func (r *Runtime) initSecurity() error {
	secCfg, err := security.LoadOrCreateConfig(
		filepath.Join(r.config.ConfigDir, securityConfigFile),
		filepath.Join(r.config.ConfigDir, usersFile),
	)
	if err != nil {
		return err
	}

	mgr, err := security.NewManager(secCfg, r.logger)
	if err != nil {
		return err
	}
	if err := mgr.Initialize(); err != nil {
		return err
	}
	r.security = mgr
	return nil
}

// loadBuiltinsLocked instantiates every registered factory, forwarding
// the caller's initialization options to each module. A failing built-in
// is skipped with a logged error rather than aborting startup.
func (r *Runtime) loadBuiltinsLocked(ctx context.Context, options types.Params) {
	deps := ModuleDeps{Logger: r.logger, Metrics: r.metrics, Security: r.security}
	for _, name := range r.factories.Names() {
		mod, err := r.factories.Get(name)(deps)
		if err != nil {
			r.logger.Error("failed to construct built-in module", err,
				map[string]interface{}{"module": name})
			continue
		}
		if err := mod.Initialize(ctx, options); err != nil {
			r.logger.Error("failed to initialize built-in module", err,
				map[string]interface{}{"module": name})
			continue
		}
		r.modules[mod.Name()] = mod
	}
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Security returns the security manager, or nil when security is disabled
// or the runtime has not been initialized.
func (r *Runtime) Security() *security.Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.security
}

// GetModule returns the loaded module with the given name, or nil.
func (r *Runtime) GetModule(name string) interfaces.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[name]
}

// ListModules returns the names of all loaded modules.
func (r *Runtime) ListModules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	return names
}

// LoadModule initializes mod and adds it to the registry. Loading a name
// that is already present is a logged no-op returning the existing module.
func (r *Runtime) LoadModule(ctx context.Context, mod interfaces.Module, options types.Params) (interfaces.Module, error) {
	if mod == nil {
		return nil, errors.NewValidationError("module cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateInitialized {
		return nil, errors.NewNotInitializedError("runtime")
	}
	if existing, ok := r.modules[mod.Name()]; ok {
		r.logger.Warn("module already loaded", map[string]interface{}{"module": mod.Name()})
		return existing, nil
	}

	if err := mod.Initialize(ctx, options); err != nil {
		return nil, err
	}
	r.modules[mod.Name()] = mod
	r.logger.Info("module loaded", map[string]interface{}{"module": mod.Name()})
	return mod, nil
}

// UnloadModule shuts down and removes the named module. It reports false
// when no such module is loaded.
func (r *Runtime) UnloadModule(ctx context.Context, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unloadModuleLocked(ctx, name)
}

func (r *Runtime) unloadModuleLocked(ctx context.Context, name string) bool {
	mod, ok := r.modules[name]
	if !ok {
		r.logger.Warn("module not loaded", map[string]interface{}{"module": name})
		return false
	}
	if err := mod.Shutdown(ctx); err != nil {
		r.logger.Error("module shutdown failed", err, map[string]interface{}{"module": name})
	}
	delete(r.modules, name)
	r.logger.Info("module unloaded", map[string]interface{}{"module": name})
	return true
}

// LoadPlugin registers a plugin and loads every module it contributes.
// Module name collisions are skipped with a warning so a plugin cannot
// shadow an existing module.
func (r *Runtime) LoadPlugin(ctx context.Context, plugin interfaces.Plugin) error {
	if plugin == nil {
		return errors.NewValidationError("plugin cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateInitialized {
		return errors.NewNotInitializedError("runtime")
	}
	if _, ok := r.pluginModules[plugin.Name()]; ok {
		return errors.NewAlreadyExistsError(fmt.Sprintf("plugin %q", plugin.Name()))
	}

	var loaded []string
	for _, mod := range plugin.Modules() {
		if _, ok := r.modules[mod.Name()]; ok {
			r.logger.Warn("plugin module name already in use, skipping",
				map[string]interface{}{"plugin": plugin.Name(), "module": mod.Name()})
			continue
		}
		if err := mod.Initialize(ctx, nil); err != nil {
			r.logger.Error("failed to initialize plugin module", err,
				map[string]interface{}{"plugin": plugin.Name(), "module": mod.Name()})
			continue
		}
		r.modules[mod.Name()] = mod
		loaded = append(loaded, mod.Name())
	}

	r.plugins = append(r.plugins, plugin)
	r.pluginModules[plugin.Name()] = loaded
	r.logger.Info("plugin loaded", map[string]interface{}{
		"plugin":  plugin.Name(),
		"version": plugin.Version(),
		"modules": len(loaded),
	})
	return nil
}

// UnloadPlugin shuts down the named plugin and unloads the modules it
// contributed. It reports false when no such plugin is registered.
func (r *Runtime) UnloadPlugin(ctx context.Context, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unloadPluginLocked(ctx, name)
}

func (r *Runtime) unloadPluginLocked(ctx context.Context, name string) bool {
	moduleNames, ok := r.pluginModules[name]
	if !ok {
		r.logger.Warn("plugin not loaded", map[string]interface{}{"plugin": name})
		return false
	}

	var plugin interfaces.Plugin
	for i, p := range r.plugins {
		if p.Name() == name {
			plugin = p
			r.plugins = append(r.plugins[:i], r.plugins[i+1:]...)
			break
		}
	}

	for _, modName := range moduleNames {
		r.unloadModuleLocked(ctx, modName)
	}
	if plugin != nil {
		if err := plugin.Shutdown(ctx); err != nil {
			r.logger.Error("plugin shutdown failed", err, map[string]interface{}{"plugin": name})
		}
	}
	delete(r.pluginModules, name)
	r.logger.Info("plugin unloaded", map[string]interface{}{"plugin": name})
	return true
}

// EmitEvent broadcasts an event to every registered plugin. A handler
// that returns an error or panics is logged and never interrupts delivery
// to the remaining plugins.
func (r *Runtime) EmitEvent(ctx context.Context, name string, data types.Params) {
	r.mu.RLock()
	plugins := make([]interfaces.Plugin, len(r.plugins))
	copy(plugins, r.plugins)
	r.mu.RUnlock()

	event := interfaces.Event{
		ID:        uuid.New().String(),
		Name:      name,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	for _, plugin := range plugins {
		r.deliverEvent(ctx, plugin, event)
	}
}

func (r *Runtime) deliverEvent(ctx context.Context, plugin interfaces.Plugin, event interfaces.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("plugin event handler panicked",
				fmt.Errorf("panic: %v", rec),
				map[string]interface{}{"plugin": plugin.Name(), "event": event.Name})
		}
	}()

	if err := plugin.HandleEvent(ctx, event); err != nil {
		r.logger.Error("plugin event handler failed", err,
			map[string]interface{}{"plugin": plugin.Name(), "event": event.Name})
	}
}

// ExecuteCommand parses a textual invocation and dispatches it. Parse
// failures surface as failed results, never as panics or raw errors.
func (r *Runtime) ExecuteCommand(ctx context.Context, commandString string, cctx *types.CommandContext) *types.CommandResult {
	inv, err := ParseCommandString(commandString)
	if err != nil {
		return types.NewFailureResult(err.Error())
	}
	return r.ExecuteCommandExplicit(ctx, inv.Module, inv.Command, inv.Params, cctx)
}

// ExecuteCommandExplicit resolves the named module and command, enforces
// the authorization gate and runs the command under the configured
// timeout. Every failure mode is reported as a failed result.
func (r *Runtime) ExecuteCommandExplicit(ctx context.Context, moduleName, commandName string, params types.Params, cctx *types.CommandContext) *types.CommandResult {
	start := time.Now()

	r.mu.RLock()
	state := r.state
	mod := r.modules[moduleName]
	sec := r.security
	cfg := r.config
	r.mu.RUnlock()

	if state != StateInitialized {
		return types.NewFailureResult(errors.NewNotInitializedError("runtime").Error())
	}
	if mod == nil {
		r.countFailure(moduleName, commandName, "module_not_found")
		return types.NewFailureResult(errors.NewModuleNotFoundError(moduleName).Error())
	}
	cmd := mod.GetCommand(commandName)
	if cmd == nil {
		r.countFailure(moduleName, commandName, "command_not_found")
		return types.NewFailureResult(errors.NewCommandNotFoundError(moduleName, commandName).Error())
	}

	if cctx == nil {
		cctx = &types.CommandContext{}
	}

	if cmd.RequiresAuth() && sec != nil {
		if res := r.authorize(cmd, moduleName, commandName, cctx, sec); res != nil {
			return res
		}
	}

	if cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CommandTimeout)
		defer cancel()
	}

	result := mod.ExecuteCommand(ctx, commandName, params, cctx)
	if result == nil {
		result = types.NewFailureResult(
			fmt.Sprintf("command %s.%s returned no result", moduleName, commandName))
	}

	r.metrics.Timer("runtime_dispatch_duration_ms",
		float64(time.Since(start).Milliseconds()),
		map[string]string{"module": moduleName, "command": commandName})
	if !result.Success {
		r.countFailure(moduleName, commandName, "execution")
	}
	return result
}

// authorize applies the authentication and permission gate ahead of any
// command side effects. Permission checks are all-or-nothing.
func (r *Runtime) authorize(cmd interfaces.Command, moduleName, commandName string, cctx *types.CommandContext, sec *security.Manager) *types.CommandResult {
	qualified := moduleName + "." + commandName

	if !cctx.Security.IsAuthenticated {
		r.countFailure(moduleName, commandName, "auth_required")
		return types.NewFailureResult(errors.NewAuthRequiredError(qualified).Error())
	}

	for _, perm := range cmd.RequiredPermissions() {
		category, level, err := security.ParsePermission(perm)
		if err != nil {
			r.logger.Error("command declares malformed permission", err,
				map[string]interface{}{"command": qualified, "permission": perm})
			r.countFailure(moduleName, commandName, "insufficient_permission")
			return types.NewFailureResult(errors.NewInsufficientPermissionError(qualified).Error())
		}
		if !sec.HasPermission(cctx.UserID, category, level) {
			r.countFailure(moduleName, commandName, "insufficient_permission")
			return types.NewFailureResult(errors.NewInsufficientPermissionError(qualified).Error())
		}
	}
	return nil
}

func (r *Runtime) countFailure(moduleName, commandName, reason string) {
	r.metrics.Counter("runtime_dispatch_failures_total", 1, map[string]string{
		"module":  moduleName,
		"command": commandName,
		"reason":  reason,
	})
}

// Shutdown stops plugins first, then modules, then marks the runtime
// shut down. Individual failures are logged and never abort the sweep.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateInitialized {
		r.logger.Warn("runtime not initialized, nothing to shut down",
			map[string]interface{}{"state": r.state.String()})
		return nil
	}

	for name := range r.pluginModules {
		r.unloadPluginLocked(ctx, name)
	}
	for name := range r.modules {
		r.unloadModuleLocked(ctx, name)
	}

	r.state = StateShutdown
	r.logger.Info("runtime shut down")
	return nil
}
