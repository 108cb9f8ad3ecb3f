package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rolloutctl/internal/config"
	"rolloutctl/internal/manifest"
	"rolloutctl/internal/orchestrator"
	"rolloutctl/internal/registry"
)

// fakeAPI implements RolloutAPI with per-method hooks and permissive
// defaults.
type fakeAPI struct {
	mu sync.Mutex

	environmentsFunc func() []config.Environment
	unitsFunc        func(services []string) ([]registry.Descriptor, error)
	rolloutFunc      func(ctx context.Context, environment string, services []string, opts orchestrator.Options) (*manifest.Manifest, int, error)
	statusFunc       func(ctx context.Context, environment string, services []string) ([]UnitStatus, error)
	freezeFunc       func(ctx context.Context, environment string, services []string) ([]string, error)
	promoteFunc      func(ctx context.Context, environment string) (string, error)

	rolloutCalls    int
	lastEnvironment string
	lastServices    []string
	lastOpts        orchestrator.Options
}

func (f *fakeAPI) Environments() []config.Environment {
	if f.environmentsFunc != nil {
		return f.environmentsFunc()
	}
	return []config.Environment{
		{Name: "staging", Gateway: config.GatewaySettings{Name: "edge"}},
		{Name: "production", Namespace: "prod-apps"},
	}
}

func (f *fakeAPI) Units(services []string) ([]registry.Descriptor, error) {
	if f.unitsFunc != nil {
		return f.unitsFunc(services)
	}
	return []registry.Descriptor{
		{Name: "auth", Phase: 1, Image: "registry.example.com/auth:1.4.0", HealthPath: "/health"},
		{Name: "ledger", Phase: 2, Image: "registry.example.com/ledger:2.1.3", HealthPath: "/health"},
	}, nil
}

func (f *fakeAPI) Rollout(ctx context.Context, environment string, services []string, opts orchestrator.Options) (*manifest.Manifest, int, error) {
	f.mu.Lock()
	f.rolloutCalls++
	f.lastEnvironment = environment
	f.lastServices = services
	f.lastOpts = opts
	f.mu.Unlock()
	if f.rolloutFunc != nil {
		return f.rolloutFunc(ctx, environment, services, opts)
	}
	return &manifest.Manifest{
		Environment: environment,
		RunID:       "run-1",
		Services: []manifest.ServiceResult{
			{Service: "auth", Phase: 1, Status: manifest.StatusSucceeded},
		},
	}, 0, nil
}

func (f *fakeAPI) Status(ctx context.Context, environment string, services []string) ([]UnitStatus, error) {
	f.mu.Lock()
	f.lastEnvironment = environment
	f.lastServices = services
	f.mu.Unlock()
	if f.statusFunc != nil {
		return f.statusFunc(ctx, environment, services)
	}
	return []UnitStatus{
		{Service: "auth", Ready: true, URL: "http://auth.staging.svc.cluster.local", Revision: "4"},
	}, nil
}

func (f *fakeAPI) Freeze(ctx context.Context, environment string, services []string) ([]string, error) {
	f.mu.Lock()
	f.lastEnvironment = environment
	f.lastServices = services
	f.mu.Unlock()
	if f.freezeFunc != nil {
		return f.freezeFunc(ctx, environment, services)
	}
	return services, nil
}

func (f *fakeAPI) Promote(ctx context.Context, environment string) (string, error) {
	f.mu.Lock()
	f.lastEnvironment = environment
	f.mu.Unlock()
	if f.promoteFunc != nil {
		return f.promoteFunc(ctx, environment)
	}
	return "edge-routes-deadbeef", nil
}

func callReq(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent")
	return content.Text
}

func TestGetRolloutTools(t *testing.T) {
	rt := NewRolloutTools(&fakeAPI{})
	tools := rt.GetRolloutTools()
	assert.Len(t, tools, 7)

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"environment_list", "unit_list", "rollout_plan", "rollout_start",
		"unit_status", "unit_freeze", "gateway_promote",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestServerTools_EveryToolHasAHandler(t *testing.T) {
	rt := NewRolloutTools(&fakeAPI{})
	serverTools := rt.ServerTools()
	require.Len(t, serverTools, len(rt.GetRolloutTools()))
	for _, st := range serverTools {
		assert.NotNil(t, st.Handler, "tool %s has no handler", st.Tool.Name)
	}
}

func TestHandleEnvironmentList(t *testing.T) {
	rt := NewRolloutTools(&fakeAPI{})

	result, err := rt.HandleEnvironmentList(context.Background(), callReq("environment_list", map[string]interface{}{}))
	require.NoError(t, err)

	text := textContent(t, result)
	assert.Contains(t, text, `"staging"`)
	assert.Contains(t, text, `"prod-apps"`)
	assert.Contains(t, text, `"edge"`)
	assert.Contains(t, text, `"total": 2`)
}

func TestHandleUnitList(t *testing.T) {
	rt := NewRolloutTools(&fakeAPI{})

	result, err := rt.HandleUnitList(context.Background(), callReq("unit_list", map[string]interface{}{}))
	require.NoError(t, err)

	text := textContent(t, result)
	assert.Contains(t, text, `"auth"`)
	assert.Contains(t, text, `"ledger"`)
	assert.Contains(t, text, `"total": 2`)
}

func TestHandleUnitList_SelectionErrorIsToolError(t *testing.T) {
	api := &fakeAPI{
		unitsFunc: func([]string) ([]registry.Descriptor, error) {
			return nil, errors.New(`unknown service "billing"`)
		},
	}
	rt := NewRolloutTools(api)

	result, err := rt.HandleUnitList(context.Background(),
		callReq("unit_list", map[string]interface{}{"services": "billing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleRolloutPlan_ForcesDryRun(t *testing.T) {
	api := &fakeAPI{}
	rt := NewRolloutTools(api)

	result, err := rt.HandleRolloutPlan(context.Background(), callReq("rollout_plan", map[string]interface{}{
		"environment": "staging",
		"services":    "auth, ledger",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	assert.Equal(t, 1, api.rolloutCalls)
	assert.Equal(t, "staging", api.lastEnvironment)
	assert.Equal(t, []string{"auth", "ledger"}, api.lastServices)
	assert.True(t, api.lastOpts.DryRun)
}

func TestHandleRolloutStart_MissingEnvironment(t *testing.T) {
	rt := NewRolloutTools(&fakeAPI{})

	result, err := rt.HandleRolloutStart(context.Background(), callReq("rollout_start", map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleRolloutStart_PassesOptions(t *testing.T) {
	api := &fakeAPI{}
	rt := NewRolloutTools(api)

	result, err := rt.HandleRolloutStart(context.Background(), callReq("rollout_start", map[string]interface{}{
		"environment":   "production",
		"concurrency":   3,
		"strict_access": true,
		"no_rollback":   true,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	assert.Equal(t, "production", api.lastEnvironment)
	assert.Equal(t, 3, api.lastOpts.Concurrency)
	assert.True(t, api.lastOpts.StrictAccess)
	assert.True(t, api.lastOpts.NoRollback)
	assert.False(t, api.lastOpts.SkipGateway)
	assert.False(t, api.lastOpts.DryRun)

	text := textContent(t, result)
	assert.Contains(t, text, `"failed": 0`)
	assert.Contains(t, text, `"run-1"`)
}

func TestHandleRolloutStart_FollowUpErrorBecomesWarning(t *testing.T) {
	api := &fakeAPI{
		rolloutFunc: func(context.Context, string, []string, orchestrator.Options) (*manifest.Manifest, int, error) {
			m := &manifest.Manifest{Environment: "staging", RunID: "run-2"}
			return m, 0, errors.New("gateway promotion: verifying gateway edge: boom")
		},
	}
	rt := NewRolloutTools(api)

	result, err := rt.HandleRolloutStart(context.Background(), callReq("rollout_start", map[string]interface{}{
		"environment": "staging",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, "a finished rollout with a failed follow-up is not a tool error")

	text := textContent(t, result)
	assert.Contains(t, text, "gateway promotion")
	assert.Contains(t, text, `"warning"`)
}

func TestHandleRolloutStart_StartupFailure(t *testing.T) {
	api := &fakeAPI{
		rolloutFunc: func(context.Context, string, []string, orchestrator.Options) (*manifest.Manifest, int, error) {
			return nil, 0, errors.New(`environment "nowhere" not found`)
		},
	}
	rt := NewRolloutTools(api)

	result, err := rt.HandleRolloutStart(context.Background(), callReq("rollout_start", map[string]interface{}{
		"environment": "nowhere",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleUnitStatus(t *testing.T) {
	api := &fakeAPI{}
	rt := NewRolloutTools(api)

	result, err := rt.HandleUnitStatus(context.Background(), callReq("unit_status", map[string]interface{}{
		"environment": "staging",
		"services":    "auth",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"auth"}, api.lastServices)
	text := textContent(t, result)
	assert.Contains(t, text, `"ready": true`)
	assert.Contains(t, text, `"revision": "4"`)
}

func TestHandleUnitFreeze(t *testing.T) {
	api := &fakeAPI{}
	rt := NewRolloutTools(api)

	result, err := rt.HandleUnitFreeze(context.Background(), callReq("unit_freeze", map[string]interface{}{
		"environment": "production",
		"services":    "auth,ledger",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	assert.Equal(t, []string{"auth", "ledger"}, api.lastServices)
	assert.Contains(t, textContent(t, result), "Froze 2 unit(s) in production")
}

func TestHandleUnitFreeze_RequiresExplicitUnits(t *testing.T) {
	rt := NewRolloutTools(&fakeAPI{})

	result, err := rt.HandleUnitFreeze(context.Background(), callReq("unit_freeze", map[string]interface{}{
		"environment": "production",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	// "all" would freeze the entire environment; demand explicit names.
	result, err = rt.HandleUnitFreeze(context.Background(), callReq("unit_freeze", map[string]interface{}{
		"environment": "production",
		"services":    "all",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGatewayPromote(t *testing.T) {
	rt := NewRolloutTools(&fakeAPI{})

	result, err := rt.HandleGatewayPromote(context.Background(), callReq("gateway_promote", map[string]interface{}{
		"environment": "staging",
	}))
	require.NoError(t, err)
	assert.Contains(t, textContent(t, result), "edge-routes-deadbeef")
}

func TestHandleGatewayPromote_Failure(t *testing.T) {
	api := &fakeAPI{
		promoteFunc: func(context.Context, string) (string, error) {
			return "", errors.New("environment staging has no gateway")
		},
	}
	rt := NewRolloutTools(api)

	result, err := rt.HandleGatewayPromote(context.Background(), callReq("gateway_promote", map[string]interface{}{
		"environment": "staging",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSplitServices(t *testing.T) {
	assert.Nil(t, splitServices(""))
	assert.Nil(t, splitServices("all"))
	assert.Equal(t, []string{"auth", "ledger"}, splitServices("auth,ledger"))
	assert.Equal(t, []string{"auth", "ledger"}, splitServices(" auth , ledger ,"))
}
