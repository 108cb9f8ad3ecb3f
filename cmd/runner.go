package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rolloutctl/internal/agent"
	"rolloutctl/internal/cloud"
	"rolloutctl/internal/cloud/kube"
	"rolloutctl/internal/config"
	"rolloutctl/internal/manifest"
	"rolloutctl/internal/orchestrator"
	"rolloutctl/internal/registry"
	"rolloutctl/internal/reporting"
)

// runner binds the loaded catalog to a control plane and carries the
// operations every command shares. It is also the backend the MCP agent
// exposes as tools.
type runner struct {
	cfg config.Config

	// The control plane is dialed on first use so catalog-only operations
	// (plan, dry runs, listing) work without cluster credentials.
	mu       sync.Mutex
	plane    cloud.ControlPlane
	newPlane func() (cloud.ControlPlane, error)
}

var _ agent.RolloutAPI = (*runner)(nil)

func newRunner() (*runner, error) {
	var cfg config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadConfigFromFile(configFile)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return &runner{
		cfg: cfg,
		newPlane: func() (cloud.ControlPlane, error) {
			return kube.NewDriver(kubeContext)
		},
	}, nil
}

func (r *runner) ensurePlane() (cloud.ControlPlane, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.plane != nil {
		return r.plane, nil
	}
	plane, err := r.newPlane()
	if err != nil {
		return nil, fmt.Errorf("connecting to control plane: %w", err)
	}
	r.plane = plane
	return plane, nil
}

// environment resolves an environment name against the catalog.
func (r *runner) environment(name string) (config.Environment, error) {
	if name == "" {
		return config.Environment{}, &cloud.ConfigError{Service: "(run)", Field: "environment", Reason: "environment is required"}
	}
	env, ok := r.cfg.FindEnvironment(name)
	if !ok {
		return config.Environment{}, &cloud.ConfigError{Service: name, Field: "environment", Reason: "not defined in configuration"}
	}
	return env, nil
}

// selection builds the registry and narrows it to the named services.
// An empty selection means every catalog service.
func (r *runner) selection(services []string) (*registry.Registry, error) {
	reg, err := registry.Build(r.cfg.Services)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return reg, nil
	}
	return reg.Select(services)
}

func (r *runner) healthTimeout() time.Duration {
	seconds := r.cfg.GlobalSettings.HealthTimeoutSeconds
	if seconds <= 0 {
		seconds = config.GetDefaultConfig().GlobalSettings.HealthTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// rollout drives one run against the caller's recorder, so the watch
// dashboard can observe outcomes while the run is still in flight.
func (r *runner) rollout(ctx context.Context, env config.Environment, reg *registry.Registry, recorder *manifest.Recorder, opts orchestrator.Options) (*manifest.Manifest, int, error) {
	var plane cloud.ControlPlane
	if !opts.DryRun {
		var err error
		plane, err = r.ensurePlane()
		if err != nil {
			return nil, 0, err
		}
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = r.healthTimeout()
	}

	reporter := reporting.NewReporter(nil, env.Name, recorder.RunID())
	defer reporter.Close()

	scheduler := orchestrator.NewScheduler(orchestrator.Config{
		Plane:       plane,
		Registry:    reg,
		Environment: env,
		Templates:   r.cfg.Templates,
		Recorder:    recorder,
		Reporter:    reporter,
		Options:     opts,
	})
	return scheduler.Run(ctx)
}

// Environments implements agent.RolloutAPI.
func (r *runner) Environments() []config.Environment {
	return r.cfg.Environments
}

// Units implements agent.RolloutAPI.
func (r *runner) Units(services []string) ([]registry.Descriptor, error) {
	reg, err := r.selection(services)
	if err != nil {
		return nil, err
	}
	return reg.All(), nil
}

// Rollout implements agent.RolloutAPI. Non-dry runs persist their manifest
// under the configured manifest directory.
func (r *runner) Rollout(ctx context.Context, environment string, services []string, opts orchestrator.Options) (*manifest.Manifest, int, error) {
	env, err := r.environment(environment)
	if err != nil {
		return nil, 0, err
	}
	reg, err := r.selection(services)
	if err != nil {
		return nil, 0, err
	}

	m, failed, runErr := r.rollout(ctx, env, reg, manifest.NewRecorder(), opts)
	if m != nil && !opts.DryRun {
		if _, err := manifest.Write(*m, r.manifestDir("")); err != nil {
			return m, failed, errors.Join(runErr, err)
		}
	}
	return m, failed, runErr
}

// manifestDir resolves the manifest directory, preferring an explicit
// override over the configured default.
func (r *runner) manifestDir(override string) string {
	if override != "" {
		return override
	}
	if r.cfg.GlobalSettings.ManifestDir != "" {
		return r.cfg.GlobalSettings.ManifestDir
	}
	return config.GetDefaultConfig().GlobalSettings.ManifestDir
}

// Status implements agent.RolloutAPI with a live Describe per unit.
func (r *runner) Status(ctx context.Context, environment string, services []string) ([]agent.UnitStatus, error) {
	env, err := r.environment(environment)
	if err != nil {
		return nil, err
	}
	reg, err := r.selection(services)
	if err != nil {
		return nil, err
	}
	plane, err := r.ensurePlane()
	if err != nil {
		return nil, err
	}

	namespace := env.EffectiveNamespace()
	out := make([]agent.UnitStatus, 0, reg.Len())
	for _, desc := range reg.All() {
		status, err := plane.Describe(ctx, cloud.UnitID(namespace, desc.Name))
		if err != nil {
			var notFound *cloud.NotFoundError
			if errors.As(err, &notFound) {
				out = append(out, agent.UnitStatus{Service: desc.Name, Reason: "not deployed"})
				continue
			}
			return nil, fmt.Errorf("describing %s: %w", desc.Name, err)
		}
		reason := status.Reason
		if status.Frozen {
			reason = "frozen"
		}
		out = append(out, agent.UnitStatus{
			Service:  desc.Name,
			Ready:    status.Ready,
			Reason:   reason,
			URL:      status.EndpointURL,
			Revision: status.Revision,
		})
	}
	return out, nil
}

// Freeze implements agent.RolloutAPI. Every named unit is attempted even
// when an earlier one fails; the frozen list covers what actually stuck.
func (r *runner) Freeze(ctx context.Context, environment string, services []string) ([]string, error) {
	env, err := r.environment(environment)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, &cloud.ConfigError{Service: "(selection)", Field: "services", Reason: "freeze requires explicit service names"}
	}
	reg, err := r.selection(services)
	if err != nil {
		return nil, err
	}
	plane, err := r.ensurePlane()
	if err != nil {
		return nil, err
	}

	namespace := env.EffectiveNamespace()
	var frozen []string
	var errs []error
	for _, desc := range reg.All() {
		if err := plane.Freeze(ctx, cloud.UnitID(namespace, desc.Name)); err != nil {
			errs = append(errs, fmt.Errorf("freezing %s: %w", desc.Name, err))
			continue
		}
		frozen = append(frozen, desc.Name)
	}
	return frozen, errors.Join(errs...)
}

// Promote implements agent.RolloutAPI: it rebuilds the routing table from
// the units currently ready and runs the gateway saga against it.
func (r *runner) Promote(ctx context.Context, environment string) (string, error) {
	env, err := r.environment(environment)
	if err != nil {
		return "", err
	}
	reg, err := r.selection(nil)
	if err != nil {
		return "", err
	}
	plane, err := r.ensurePlane()
	if err != nil {
		return "", err
	}

	namespace := env.EffectiveNamespace()
	routes := make(map[string]string)
	for _, desc := range reg.All() {
		status, err := plane.Describe(ctx, cloud.UnitID(namespace, desc.Name))
		if err != nil {
			var notFound *cloud.NotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return "", fmt.Errorf("describing %s: %w", desc.Name, err)
		}
		if !status.Ready || status.EndpointURL == "" {
			continue
		}
		routes["/"+desc.Name] = status.EndpointURL
	}

	runID := uuid.NewString()
	reporter := reporting.NewReporter(nil, env.Name, runID)
	defer reporter.Close()

	promoter := orchestrator.NewGatewayPromoter(plane, env, reporter)
	return promoter.Promote(ctx, runID, routes)
}
