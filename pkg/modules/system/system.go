// Package system provides the built-in system module with runtime
// introspection and encryption commands.
package system

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/modelctl/mcprun/pkg/command"
	"github.com/modelctl/mcprun/pkg/interfaces"
	"github.com/modelctl/mcprun/pkg/module"
	"github.com/modelctl/mcprun/pkg/security"
	"github.com/modelctl/mcprun/pkg/types"
)

const (
	ModuleName    = "system"
	moduleVersion = "1.0.0"
	moduleAuthor  = "mcprun"
)

// writePermission gates the encryption commands at WRITE on the system
// category.
var writePermission = fmt.Sprintf("%s.%d", security.SystemCategory, int(security.PermissionWrite))

// InventoryFunc reports the names of the modules currently loaded in the
// hosting runtime.
type InventoryFunc func() []string

// New constructs the system module. sec may be nil when the runtime was
// configured with security disabled; the encryption commands then fail
// at execution time. inventory may be nil when the module runs outside a
// runtime.
func New(log interfaces.Logger, met interfaces.Metrics, sec *security.Manager, inventory InventoryFunc) *module.Base {
	return module.New(ModuleName, moduleVersion, moduleAuthor,
		module.WithLogger(log),
		module.WithMetrics(met),
		module.WithSetup(func(ctx context.Context, m *module.Base, options types.Params) error {
			return registerCommands(m, log, sec, inventory)
		}),
	)
}

func registerCommands(m *module.Base, log interfaces.Logger, sec *security.Manager, inventory InventoryFunc) error {
	commands := []*command.Base{
		command.New(command.Meta{
			Name:        "ping",
			Description: "Check that the runtime is responsive",
			Category:    security.SystemCategory,
			Version:     moduleVersion,
		}, pingHandler, command.WithLogger(log)),

		command.New(command.Meta{
			Name:        "info",
			Description: "Report runtime and process information",
			Category:    security.SystemCategory,
			Version:     moduleVersion,
		}, infoHandler(inventory), command.WithLogger(log)),

		command.New(command.Meta{
			Name:        "time",
			Description: "Report the current server time",
			Category:    security.SystemCategory,
			Version:     moduleVersion,
		}, timeHandler, command.WithLogger(log)),

		command.New(command.Meta{
			Name:         "encrypt",
			Description:  "Encrypt a value with the runtime encryption key",
			Category:     security.SystemCategory,
			Version:      moduleVersion,
			RequiresAuth: true,
			Permissions:  []string{writePermission},
		}, encryptHandler(sec),
			command.WithValidator(requireValue),
			command.WithLogger(log)),

		command.New(command.Meta{
			Name:         "decrypt",
			Description:  "Decrypt a value produced by system.encrypt",
			Category:     security.SystemCategory,
			Version:      moduleVersion,
			RequiresAuth: true,
			Permissions:  []string{writePermission},
		}, decryptHandler(sec),
			command.WithValidator(requireValue),
			command.WithLogger(log)),
	}

	for _, cmd := range commands {
		if err := m.RegisterCommand(cmd); err != nil {
			return err
		}
	}
	return nil
}

func requireValue(params types.Params) bool {
	return params.GetString("value", "") != ""
}

func pingHandler(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
	return types.NewSuccessResult(map[string]interface{}{"message": "pong"})
}

func infoHandler(inventory InventoryFunc) command.HandlerFunc {
	return func(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
		data := map[string]interface{}{
			"module":     ModuleName,
			"version":    moduleVersion,
			"go":         runtime.Version(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"goroutines": runtime.NumGoroutine(),
		}
		if inventory != nil {
			data["modules"] = inventory()
		}
		return types.NewSuccessResult(data)
	}
}

func timeHandler(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
	now := time.Now()
	return types.NewSuccessResult(map[string]interface{}{
		"epochMillis": now.UnixMilli(),
		"iso":         now.UTC().Format(time.RFC3339),
	})
}

func encryptHandler(sec *security.Manager) command.HandlerFunc {
	return func(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
		if sec == nil {
			return types.NewFailureResult("security is disabled")
		}
		encrypted, err := sec.Encrypt(params.GetString("value", ""))
		if err != nil {
			return types.NewFailureResult(err.Error())
		}
		return types.NewSuccessResult(map[string]interface{}{"encrypted": encrypted})
	}
}

func decryptHandler(sec *security.Manager) command.HandlerFunc {
	return func(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
		if sec == nil {
			return types.NewFailureResult("security is disabled")
		}
		decrypted, err := sec.Decrypt(params.GetString("value", ""))
		if err != nil {
			return types.NewFailureResult(err.Error())
		}
		return types.NewSuccessResult(map[string]interface{}{"decrypted": decrypted})
	}
}
