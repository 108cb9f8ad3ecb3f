// Package agent exposes rolloutctl's operations as MCP tools over an SSE
// endpoint, so orchestration assistants can plan, run and inspect rollouts
// through the same engine the CLI uses.
package agent

import (
	"context"

	"rolloutctl/internal/config"
	"rolloutctl/internal/manifest"
	"rolloutctl/internal/orchestrator"
	"rolloutctl/internal/registry"
)

// RolloutAPI is the slice of rolloutctl the agent tools call into. The CLI
// wires the real engine; tests substitute a fake.
type RolloutAPI interface {
	// Environments lists the configured deployment targets.
	Environments() []config.Environment

	// Units resolves the catalog selection. An empty selection means every
	// defined unit.
	Units(services []string) ([]registry.Descriptor, error)

	// Rollout runs a deployment and returns the manifest and the failed-unit
	// count. Dry runs are requested through opts.
	Rollout(ctx context.Context, environment string, services []string, opts orchestrator.Options) (*manifest.Manifest, int, error)

	// Status describes the live state of the selected units.
	Status(ctx context.Context, environment string, services []string) ([]UnitStatus, error)

	// Freeze isolates the named units and returns the ones actually frozen.
	Freeze(ctx context.Context, environment string, services []string) ([]string, error)

	// Promote runs the gateway promotion saga over the currently serving
	// units and returns the new route config name.
	Promote(ctx context.Context, environment string) (string, error)
}

// UnitStatus is one unit's live control-plane state as reported by the
// unit_status tool.
type UnitStatus struct {
	Service  string `json:"service"`
	Ready    bool   `json:"ready"`
	Reason   string `json:"reason,omitempty"`
	URL      string `json:"url,omitempty"`
	Revision string `json:"revision,omitempty"`
}
