package module

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelctl/mcprun/pkg/command"
	"github.com/modelctl/mcprun/pkg/interfaces"
	"github.com/modelctl/mcprun/pkg/logger"
	"github.com/modelctl/mcprun/pkg/metrics"
	"github.com/modelctl/mcprun/pkg/types"
)

func testCommand(name string, data interface{}) interfaces.Command {
	return command.New(command.Meta{
		Name:     name,
		Category: "system",
		Version:  "1.0.0",
	}, func(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
		return types.NewSuccessResult(data)
	}, command.WithLogger(logger.NewTestLogger()))
}

func setupModule(t *testing.T) *Base {
	t.Helper()
	m := New("demo", "1.0.0", "tester",
		WithLogger(logger.NewTestLogger()),
		WithMetrics(metrics.NewTestMetrics()))
	require.NoError(t, m.Initialize(context.Background(), nil))
	return m
}

func TestModuleLifecycle(t *testing.T) {
	setupRuns := 0
	m := New("demo", "1.0.0", "tester",
		WithLogger(logger.NewTestLogger()),
		WithSetup(func(ctx context.Context, m *Base, options types.Params) error {
			setupRuns++
			return m.RegisterCommand(testCommand("hello", "world"))
		}))

	assert.False(t, m.Initialized())
	require.NoError(t, m.Initialize(context.Background(), nil))
	assert.True(t, m.Initialized())
	assert.Equal(t, []string{"hello"}, m.ListCommands())

	// Re-initializing is a no-op; setup must not run twice.
	require.NoError(t, m.Initialize(context.Background(), nil))
	assert.Equal(t, 1, setupRuns)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.Initialized())
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestConcurrentInitializeRunsSetupOnce(t *testing.T) {
	setupRuns := 0
	m := New("demo", "1.0.0", "tester",
		WithLogger(logger.NewTestLogger()),
		WithSetup(func(ctx context.Context, m *Base, options types.Params) error {
			setupRuns++
			return m.RegisterCommand(testCommand("hello", "world"))
		}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Initialize(context.Background(), nil)
		}()
	}
	wg.Wait()

	assert.True(t, m.Initialized())
	assert.Equal(t, 1, setupRuns)
	assert.Equal(t, []string{"hello"}, m.ListCommands())
}

func TestModuleSetupFailure(t *testing.T) {
	m := New("broken", "1.0.0", "tester",
		WithLogger(logger.NewTestLogger()),
		WithSetup(func(ctx context.Context, m *Base, options types.Params) error {
			return fmt.Errorf("no database")
		}))

	err := m.Initialize(context.Background(), nil)
	require.Error(t, err)
	assert.False(t, m.Initialized())
}

func TestRegisterCommandFirstWins(t *testing.T) {
	m := setupModule(t)

	require.NoError(t, m.RegisterCommand(testCommand("greet", "first")))
	require.NoError(t, m.RegisterCommand(testCommand("greet", "second")))

	result := m.ExecuteCommand(context.Background(), "greet", nil, nil)
	require.True(t, result.Success)
	assert.Equal(t, "first", result.Data)
}

func TestRegisterCommandValidation(t *testing.T) {
	m := setupModule(t)

	assert.Error(t, m.RegisterCommand(nil))
	assert.Error(t, m.RegisterCommand(testCommand("", nil)))

	bad := command.New(command.Meta{
		Name:        "locked",
		Category:    "system",
		Version:     "1.0.0",
		Permissions: []string{"system.9"},
	}, nil, command.WithLogger(logger.NewTestLogger()))
	err := m.RegisterCommand(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid permission")
}

func TestConcurrentRegistrationSameName(t *testing.T) {
	m := setupModule(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.RegisterCommand(testCommand("racy", i))
		}(i)
	}
	wg.Wait()

	// Exactly one registration survives, and dispatch still works.
	assert.Equal(t, []string{"racy"}, m.ListCommands())
	result := m.ExecuteCommand(context.Background(), "racy", nil, nil)
	assert.True(t, result.Success)
}

func TestUnregisterCommand(t *testing.T) {
	m := setupModule(t)
	require.NoError(t, m.RegisterCommand(testCommand("gone", nil)))

	assert.True(t, m.UnregisterCommand("gone"))
	assert.Nil(t, m.GetCommand("gone"))
	assert.False(t, m.UnregisterCommand("gone"))
	assert.False(t, m.UnregisterCommand("never-was"))
}

func TestExecuteCommandNotFound(t *testing.T) {
	m := setupModule(t)

	result := m.ExecuteCommand(context.Background(), "missing", nil, nil)
	require.False(t, result.Success)
	assert.Contains(t, result.Error, `command "missing" not found in module "demo"`)
}

func TestExecuteCommandValidationRejection(t *testing.T) {
	m := setupModule(t)

	invoked := false
	guarded := command.New(command.Meta{
		Name:     "guarded",
		Category: "system",
		Version:  "1.0.0",
	}, func(ctx context.Context, params types.Params, cctx *types.CommandContext) *types.CommandResult {
		invoked = true
		return types.NewSuccessResult(nil)
	},
		command.WithValidator(func(params types.Params) bool { return params.Has("key") }),
		command.WithLogger(logger.NewTestLogger()))
	require.NoError(t, m.RegisterCommand(guarded))

	result := m.ExecuteCommand(context.Background(), "guarded", types.Params{}, nil)
	require.False(t, result.Success)
	assert.False(t, invoked)
}

func TestListCommandsSorted(t *testing.T) {
	m := setupModule(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, m.RegisterCommand(testCommand(name, nil)))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, m.ListCommands())
}
