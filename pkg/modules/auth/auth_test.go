package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelctl/mcprun/pkg/logger"
	"github.com/modelctl/mcprun/pkg/metrics"
	"github.com/modelctl/mcprun/pkg/module"
	"github.com/modelctl/mcprun/pkg/security"
	"github.com/modelctl/mcprun/pkg/types"
)

func setupSecurity(t *testing.T) *security.Manager {
	t.Helper()
	dir := t.TempDir()
	cfg, err := security.LoadOrCreateConfig(
		filepath.Join(dir, "security.json"),
		filepath.Join(dir, "users.json"))
	require.NoError(t, err)
	mgr, err := security.NewManager(cfg, logger.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, mgr.Initialize())
	return mgr
}

func setupModule(t *testing.T, sec *security.Manager) *module.Base {
	t.Helper()
	m := New(logger.NewTestLogger(), metrics.NewTestMetrics(), sec)
	require.NoError(t, m.Initialize(context.Background(), nil))
	return m
}

func TestModuleRegistersCommands(t *testing.T) {
	m := setupModule(t, setupSecurity(t))
	assert.Equal(t, ModuleName, m.Name())
	assert.Equal(t, []string{"create_user", "login", "logout", "whoami"}, m.ListCommands())

	createUser := m.GetCommand("create_user")
	require.NotNil(t, createUser)
	assert.True(t, createUser.RequiresAuth())
	assert.Equal(t, []string{"admin.4"}, createUser.RequiredPermissions())

	assert.False(t, m.GetCommand("login").RequiresAuth())
}

func TestLoginSuccess(t *testing.T) {
	sec := setupSecurity(t)
	m := setupModule(t, sec)

	_, err := sec.CreateUser("alice", "hunter2", nil)
	require.NoError(t, err)

	result := m.ExecuteCommand(context.Background(), "login",
		types.Params{"username": "alice", "password": "hunter2"}, nil)
	require.True(t, result.Success, result.Error)

	data := result.Data.(map[string]interface{})
	assert.NotEmpty(t, data["token"])
	assert.NotEmpty(t, data["userId"])

	userID, ok := sec.ValidateToken(data["token"].(string))
	assert.True(t, ok)
	assert.Equal(t, data["userId"], userID)
}

func TestLoginFailure(t *testing.T) {
	sec := setupSecurity(t)
	m := setupModule(t, sec)

	_, err := sec.CreateUser("alice", "hunter2", nil)
	require.NoError(t, err)

	wrongPassword := m.ExecuteCommand(context.Background(), "login",
		types.Params{"username": "alice", "password": "nope"}, nil)
	require.False(t, wrongPassword.Success)

	unknownUser := m.ExecuteCommand(context.Background(), "login",
		types.Params{"username": "mallory", "password": "nope"}, nil)
	require.False(t, unknownUser.Success)
	assert.Equal(t, wrongPassword.Error, unknownUser.Error)
}

func TestLoginRequiresCredentials(t *testing.T) {
	m := setupModule(t, setupSecurity(t))

	result := m.ExecuteCommand(context.Background(), "login",
		types.Params{"username": "alice"}, nil)
	require.False(t, result.Success)
}

func TestWhoami(t *testing.T) {
	sec := setupSecurity(t)
	m := setupModule(t, sec)

	user, err := sec.CreateUser("alice", "hunter2", nil)
	require.NoError(t, err)

	cctx := &types.CommandContext{UserID: user.ID, SessionID: "s1"}
	result := m.ExecuteCommand(context.Background(), "whoami", nil, cctx)
	require.True(t, result.Success, result.Error)

	got := result.Data.(*security.User)
	assert.Equal(t, "alice", got.Username)
	assert.Empty(t, got.PasswordHash)
}

func TestLogoutRevokesToken(t *testing.T) {
	sec := setupSecurity(t)
	m := setupModule(t, sec)

	_, err := sec.CreateUser("alice", "hunter2", nil)
	require.NoError(t, err)
	res, err := sec.Authenticate("alice", "hunter2")
	require.NoError(t, err)

	cctx := &types.CommandContext{
		UserID:   res.UserID,
		Security: types.SecurityContext{IsAuthenticated: true, Token: res.Token},
	}
	result := m.ExecuteCommand(context.Background(), "logout", nil, cctx)
	require.True(t, result.Success)
	assert.Equal(t, true, result.Data.(map[string]interface{})["revoked"])

	_, ok := sec.ValidateToken(res.Token)
	assert.False(t, ok)
}

func TestCreateUser(t *testing.T) {
	sec := setupSecurity(t)
	m := setupModule(t, sec)

	result := m.ExecuteCommand(context.Background(), "create_user", types.Params{
		"username":    "bob",
		"password":    "secret",
		"permissions": map[string]interface{}{"files": float64(2)},
	}, nil)
	require.True(t, result.Success, result.Error)

	created, err := sec.GetUserByName("bob")
	require.NoError(t, err)
	assert.Equal(t, security.PermissionWrite, created.Permissions["files"])
	assert.Equal(t, security.PermissionRead, created.Permissions[security.SystemCategory])
}

func TestCreateUserRejectsBadPermissions(t *testing.T) {
	m := setupModule(t, setupSecurity(t))

	result := m.ExecuteCommand(context.Background(), "create_user", types.Params{
		"username":    "bob",
		"password":    "secret",
		"permissions": map[string]interface{}{"files": float64(9)},
	}, nil)
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "out of range")

	result = m.ExecuteCommand(context.Background(), "create_user", types.Params{
		"username":    "bob",
		"password":    "secret",
		"permissions": "files=2",
	}, nil)
	require.False(t, result.Success)
}
