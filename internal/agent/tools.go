package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"rolloutctl/internal/orchestrator"
)

// RolloutTools provides the MCP tools for driving rollouts.
type RolloutTools struct {
	api RolloutAPI
}

// NewRolloutTools creates the tool set over the given API.
func NewRolloutTools(api RolloutAPI) *RolloutTools {
	return &RolloutTools{api: api}
}

// GetRolloutTools returns all tool definitions.
func (rt *RolloutTools) GetRolloutTools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool("environment_list",
			mcp.WithDescription("List configured deployment environments"),
		),
		mcp.NewTool("unit_list",
			mcp.WithDescription("List catalog units with their phases and images"),
			mcp.WithString("services",
				mcp.Description("Comma-separated unit names; empty or 'all' selects every unit"),
			),
		),
		mcp.NewTool("rollout_plan",
			mcp.WithDescription("Render and validate a rollout without touching the control plane"),
			mcp.WithString("environment",
				mcp.Required(),
				mcp.Description("Target environment name"),
			),
			mcp.WithString("services",
				mcp.Description("Comma-separated unit names; empty or 'all' selects every unit"),
			),
		),
		mcp.NewTool("rollout_start",
			mcp.WithDescription("Run a phased rollout and return the resulting manifest"),
			mcp.WithString("environment",
				mcp.Required(),
				mcp.Description("Target environment name"),
			),
			mcp.WithString("services",
				mcp.Description("Comma-separated unit names; empty or 'all' selects every unit"),
			),
			mcp.WithNumber("concurrency",
				mcp.Description("Max units deployed at once within a phase (default 1)"),
			),
			mcp.WithBoolean("strict_access",
				mcp.Description("Escalate access binding failures from warning to unit failure"),
			),
			mcp.WithBoolean("no_rollback",
				mcp.Description("Leave failed deployments in place for inspection"),
			),
			mcp.WithBoolean("skip_gateway",
				mcp.Description("Skip the gateway promotion step after a clean run"),
			),
		),
		mcp.NewTool("unit_status",
			mcp.WithDescription("Describe the live control-plane state of units"),
			mcp.WithString("environment",
				mcp.Required(),
				mcp.Description("Target environment name"),
			),
			mcp.WithString("services",
				mcp.Description("Comma-separated unit names; empty or 'all' selects every unit"),
			),
		),
		mcp.NewTool("unit_freeze",
			mcp.WithDescription("Emergency-freeze units: scale to zero and cut external traffic"),
			mcp.WithString("environment",
				mcp.Required(),
				mcp.Description("Target environment name"),
			),
			mcp.WithString("services",
				mcp.Required(),
				mcp.Description("Comma-separated unit names to freeze"),
			),
		),
		mcp.NewTool("gateway_promote",
			mcp.WithDescription("Re-run gateway promotion over the currently serving units"),
			mcp.WithString("environment",
				mcp.Required(),
				mcp.Description("Target environment name"),
			),
		),
	}
}

// ServerTools pairs each tool definition with its handler for batch
// registration.
func (rt *RolloutTools) ServerTools() []server.ServerTool {
	handlers := map[string]server.ToolHandlerFunc{
		"environment_list": rt.HandleEnvironmentList,
		"unit_list":        rt.HandleUnitList,
		"rollout_plan":     rt.HandleRolloutPlan,
		"rollout_start":    rt.HandleRolloutStart,
		"unit_status":      rt.HandleUnitStatus,
		"unit_freeze":      rt.HandleUnitFreeze,
		"gateway_promote":  rt.HandleGatewayPromote,
	}

	tools := rt.GetRolloutTools()
	serverTools := make([]server.ServerTool, 0, len(tools))
	for _, tool := range tools {
		serverTools = append(serverTools, server.ServerTool{
			Tool:    tool,
			Handler: handlers[tool.Name],
		})
	}
	return serverTools
}

// HandleEnvironmentList handles the environment_list tool call.
func (rt *RolloutTools) HandleEnvironmentList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type envSummary struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace"`
		Gateway   string `json:"gateway,omitempty"`
	}

	envs := rt.api.Environments()
	summaries := make([]envSummary, 0, len(envs))
	for _, env := range envs {
		summaries = append(summaries, envSummary{
			Name:      env.Name,
			Namespace: env.EffectiveNamespace(),
			Gateway:   env.Gateway.Name,
		})
	}

	return jsonResult(map[string]interface{}{
		"environments": summaries,
		"total":        len(summaries),
	}), nil
}

// HandleUnitList handles the unit_list tool call.
func (rt *RolloutTools) HandleUnitList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type unitSummary struct {
		Name       string `json:"name"`
		Phase      int    `json:"phase"`
		Image      string `json:"image"`
		HealthPath string `json:"healthPath"`
		Invokers   int    `json:"invokers"`
	}

	descs, err := rt.api.Units(splitServices(req.GetString("services", "")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve units: %v", err)), nil
	}

	summaries := make([]unitSummary, 0, len(descs))
	for _, desc := range descs {
		summaries = append(summaries, unitSummary{
			Name:       desc.Name,
			Phase:      desc.Phase,
			Image:      desc.Image,
			HealthPath: desc.HealthPath,
			Invokers:   len(desc.Invokers),
		})
	}

	return jsonResult(map[string]interface{}{
		"units": summaries,
		"total": len(summaries),
	}), nil
}

// HandleRolloutPlan handles the rollout_plan tool call. A plan is a dry run:
// full render and validation, zero mutations.
func (rt *RolloutTools) HandleRolloutPlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	environment, err := req.RequireString("environment")
	if err != nil {
		return mcp.NewToolResultError("environment is required"), nil
	}

	m, _, err := rt.api.Rollout(ctx, environment, splitServices(req.GetString("services", "")),
		orchestrator.Options{DryRun: true})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Plan failed: %v", err)), nil
	}

	return jsonResult(m), nil
}

// HandleRolloutStart handles the rollout_start tool call. The call blocks
// until the rollout finishes; the manifest and failed count come back in one
// response.
func (rt *RolloutTools) HandleRolloutStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	environment, err := req.RequireString("environment")
	if err != nil {
		return mcp.NewToolResultError("environment is required"), nil
	}

	opts := orchestrator.Options{
		Concurrency:  req.GetInt("concurrency", 1),
		StrictAccess: req.GetBool("strict_access", false),
		NoRollback:   req.GetBool("no_rollback", false),
		SkipGateway:  req.GetBool("skip_gateway", false),
	}

	m, failed, err := rt.api.Rollout(ctx, environment, splitServices(req.GetString("services", "")), opts)
	if err != nil && m == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Rollout failed to start: %v", err)), nil
	}

	result := map[string]interface{}{
		"failed":   failed,
		"manifest": m,
	}
	if err != nil {
		// The rollout itself finished; a follow-up step did not.
		result["warning"] = err.Error()
	}
	return jsonResult(result), nil
}

// HandleUnitStatus handles the unit_status tool call.
func (rt *RolloutTools) HandleUnitStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	environment, err := req.RequireString("environment")
	if err != nil {
		return mcp.NewToolResultError("environment is required"), nil
	}

	statuses, err := rt.api.Status(ctx, environment, splitServices(req.GetString("services", "")))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get status: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"environment": environment,
		"units":       statuses,
		"total":       len(statuses),
	}), nil
}

// HandleUnitFreeze handles the unit_freeze tool call.
func (rt *RolloutTools) HandleUnitFreeze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	environment, err := req.RequireString("environment")
	if err != nil {
		return mcp.NewToolResultError("environment is required"), nil
	}
	raw, err := req.RequireString("services")
	if err != nil {
		return mcp.NewToolResultError("services is required"), nil
	}
	services := splitServices(raw)
	if len(services) == 0 {
		return mcp.NewToolResultError("services must name at least one unit"), nil
	}

	frozen, err := rt.api.Freeze(ctx, environment, services)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Freeze failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Froze %d unit(s) in %s: %s",
		len(frozen), environment, strings.Join(frozen, ", "))), nil
}

// HandleGatewayPromote handles the gateway_promote tool call.
func (rt *RolloutTools) HandleGatewayPromote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	environment, err := req.RequireString("environment")
	if err != nil {
		return mcp.NewToolResultError("environment is required"), nil
	}

	routeConfig, err := rt.api.Promote(ctx, environment)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Promotion failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Gateway for %s now serves route config '%s'", environment, routeConfig)), nil
}

func jsonResult(v interface{}) *mcp.CallToolResult {
	resultJSON, _ := json.MarshalIndent(v, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(string(resultJSON)),
		},
	}
}

// splitServices parses the comma-separated services argument. Empty and
// "all" both mean the full catalog.
func splitServices(raw string) []string {
	if raw == "" || raw == "all" {
		return nil
	}
	parts := strings.Split(raw, ",")
	services := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			services = append(services, name)
		}
	}
	return services
}
