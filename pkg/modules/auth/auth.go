// Package auth provides the built-in authentication module wrapping the
// security manager in dispatchable commands.
package auth

import (
	"context"
	"fmt"

	"github.com/modelctl/mcprun/pkg/command"
	"github.com/modelctl/mcprun/pkg/interfaces"
	"github.com/modelctl/mcprun/pkg/module"
	"github.com/modelctl/mcprun/pkg/security"
	"github.com/modelctl/mcprun/pkg/types"
)

const (
	ModuleName    = "auth"
	moduleVersion = "1.0.0"
	moduleAuthor  = "mcprun"
)

// adminPermission gates user administration at ADMIN on the reserved
// admin category.
var adminPermission = fmt.Sprintf("%s.%d", security.AdminCategory, int(security.PermissionAdmin))

// New constructs the auth module around the given security manager.
func New(log interfaces.Logger, met interfaces.Metrics, sec *security.Manager) *module.Base {
	return module.New(ModuleName, moduleVersion, moduleAuthor,
		module.WithLogger(log),
		module.WithMetrics(met),
		module.WithSetup(func(ctx context.Context, m *module.Base, options types.Params) error {
			return registerCommands(m, log, sec)
		}),
	)
}

func registerCommands(m *module.Base, log interfaces.Logger, sec *security.Manager) error {
	commands := []*command.Base{
		command.New(command.Meta{
			Name:        "login",
			Description: "Authenticate with username and password, returning a session token",
			Category:    security.SystemCategory,
			Version:     moduleVersion,
		}, loginHandler(sec),
			command.WithValidator(requireCredentials),
			command.WithLogger(log)),

		command.New(command.Meta{
			Name:         "whoami",
			Description:  "Report the authenticated caller's identity",
			Category:     security.SystemCategory,
			Version:      moduleVersion,
			RequiresAuth: true,
		}, whoamiHandler(sec), command.WithLogger(log)),

		command.New(command.Meta{
			Name:         "logout",
			Description:  "Revoke the caller's session token",
			Category:     security.SystemCategory,
			Version:      moduleVersion,
			RequiresAuth: true,
		}, logoutHandler(sec), command.WithLogger(log)),

		command.New(command.Meta{
			Name:         "create_user",
			Description:  "Create a user with an optional set of category permissions",
			Category:     security.AdminCategory,
			Version:      moduleVersion,
			RequiresAuth: true,
			Permissions:  []string{adminPermission},
		}, createUserHandler(sec),
			command.WithValidator(requireCredentials),
			command.WithLogger(log)),
	}

	for _, cmd := range commands {
		if err := m.RegisterCommand(cmd); err != nil {
			return err
		}
	}
	return nil
}

func requireCredentials(params types.Params) bool {
	return params.GetString("username", "") != "" && params.GetString("password", "") != ""
}

func loginHandler(sec *security.Manager) command.HandlerFunc {
	return func(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
		if sec == nil {
			return types.NewFailureResult("security is disabled")
		}
		res, err := sec.Authenticate(
			params.GetString("username", ""),
			params.GetString("password", ""))
		if err != nil {
			return types.NewFailureResult(err.Error())
		}
		return types.NewSuccessResult(map[string]interface{}{
			"userId":    res.UserID,
			"token":     res.Token,
			"expiresAt": res.ExpiresAt.UnixMilli(),
		})
	}
}

func whoamiHandler(sec *security.Manager) command.HandlerFunc {
	return func(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
		if sec == nil {
			return types.NewFailureResult("security is disabled")
		}
		user, err := sec.GetUser(cctx.UserID)
		if err != nil {
			return types.NewFailureResult(err.Error())
		}
		return types.NewSuccessResult(user)
	}
}

func logoutHandler(sec *security.Manager) command.HandlerFunc {
	return func(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
		if sec == nil {
			return types.NewFailureResult("security is disabled")
		}
		revoked := sec.RevokeToken(cctx.Security.Token)
		return types.NewSuccessResult(map[string]interface{}{"revoked": revoked})
	}
}

func createUserHandler(sec *security.Manager) command.HandlerFunc {
	return func(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
		if sec == nil {
			return types.NewFailureResult("security is disabled")
		}

		perms, err := parsePermissions(params["permissions"])
		if err != nil {
			return types.NewFailureResult(err.Error())
		}

		user, err := sec.CreateUser(
			params.GetString("username", ""),
			params.GetString("password", ""),
			perms)
		if err != nil {
			return types.NewFailureResult(err.Error())
		}
		return types.NewSuccessResult(user)
	}
}

// parsePermissions accepts the optional "permissions" parameter as a JSON
// object mapping category names to level ordinals.
func parsePermissions(raw interface{}) (map[string]security.PermissionLevel, error) {
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("permissions must be an object of category to level")
	}

	perms := make(map[string]security.PermissionLevel, len(obj))
	for category, v := range obj {
		ordinal, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("permission level for %q must be a number", category)
		}
		level := security.PermissionLevel(int(ordinal))
		if !level.IsValid() {
			return nil, fmt.Errorf("permission level %v for %q out of range [0,4]", v, category)
		}
		perms[category] = level
	}
	return perms, nil
}
