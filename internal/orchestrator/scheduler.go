package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"rolloutctl/internal/cloud"
	"rolloutctl/internal/config"
	"rolloutctl/internal/manifest"
	"rolloutctl/internal/registry"
	"rolloutctl/internal/reporting"
	"rolloutctl/pkg/logging"
)

const subsystem = "scheduler"

// Options are the per-run switches, mapped straight from CLI flags.
type Options struct {
	// Concurrency bounds how many units of one phase run at once.
	// Values below 1 mean strictly sequential.
	Concurrency int

	// DryRun renders and validates everything, mutates nothing and
	// disables fail-fast so every unit gets validated.
	DryRun bool

	// SkipValidation drops the schema checks during render; the control
	// plane then has the last word on a bad spec.
	SkipValidation bool

	// StrictAccess escalates binding failures from warning to unit failure.
	StrictAccess bool

	// NoRollback leaves failed deployments in place for inspection.
	NoRollback bool

	// SkipGateway suppresses the gateway promotion step even when the
	// environment defines a gateway.
	SkipGateway bool

	// HealthTimeout bounds each health probe request.
	HealthTimeout time.Duration
}

// Config wires a scheduler for one run.
type Config struct {
	Plane       cloud.ControlPlane
	Registry    *registry.Registry
	Environment config.Environment
	Templates   []config.Template
	Recorder    *manifest.Recorder
	Reporter    *reporting.Reporter
	Options     Options
}

// Scheduler walks the registry's phases in ascending order and drives every
// unit through the pipeline.
type Scheduler struct {
	plane    cloud.ControlPlane
	registry *registry.Registry
	env      config.Environment
	recorder *manifest.Recorder
	reporter *reporting.Reporter
	pipeline *unitPipeline
	opts     Options
}

// NewScheduler builds a scheduler and its pipeline from the run config.
func NewScheduler(cfg Config) *Scheduler {
	pipeline := &unitPipeline{
		plane:     cfg.Plane,
		env:       cfg.Environment,
		templates: cfg.Templates,
		readiness: NewReadinessWaiter(cfg.Plane, cfg.Environment.Readiness),
		probe:     NewHealthProbe(cfg.Options.HealthTimeout, cfg.Environment.HealthTokenVar),
		access:    NewAccessReconciler(cfg.Plane),
		rollback:  NewRollbackController(cfg.Plane),
		recorder:  cfg.Recorder,
		reporter:  cfg.Reporter,
		opts:      cfg.Options,
	}
	return &Scheduler{
		plane:    cfg.Plane,
		registry: cfg.Registry,
		env:      cfg.Environment,
		recorder: cfg.Recorder,
		reporter: cfg.Reporter,
		pipeline: pipeline,
		opts:     cfg.Options,
	}
}

// Run executes the rollout and returns the finalized manifest plus the
// failed-unit count, which is the process exit code. The manifest covers
// every selected unit: ones never launched stay Pending in it. A non-nil
// error beside a manifest means the rollout itself finished but a follow-up
// step (gateway promotion) did not.
func (s *Scheduler) Run(ctx context.Context) (*manifest.Manifest, int, error) {
	total := s.registry.Len()
	if total == 0 {
		return nil, 0, &cloud.ConfigError{Service: s.env.Name, Reason: "no services selected"}
	}

	// Register everything up front so the manifest is complete even for
	// units a fail-fast or cancel prevents from launching.
	for _, desc := range s.registry.All() {
		s.recorder.Begin(desc.Name, desc.Phase)
	}

	s.reporter.RunStarted(total)

	halted := false
	for _, phase := range s.registry.Phases() {
		if halted {
			logging.Info(subsystem, "Skipping phase %d, run is halted", phase.Number)
			continue
		}

		s.reporter.PhaseStarted(phase.Number, len(phase.Services))
		failedInPhase := s.runPhase(ctx, phase)
		s.reporter.PhaseCompleted(phase.Number, len(phase.Services), failedInPhase)

		if failedInPhase > 0 && !s.opts.DryRun {
			logging.Warn(subsystem, "Phase %d had %d failures, later phases not attempted", phase.Number, failedInPhase)
			halted = true
		}
		if ctx.Err() != nil {
			halted = true
		}
	}

	failedCount := s.recorder.FailedCount()

	var runErr error
	if s.shouldPromote(ctx, failedCount) {
		routes := RoutesFromOutcomes(s.recorder.Snapshot())
		if len(routes) > 0 {
			promoter := NewGatewayPromoter(s.plane, s.env, s.reporter)
			if _, err := promoter.Promote(ctx, s.recorder.RunID(), routes); err != nil {
				runErr = fmt.Errorf("gateway promotion: %w", err)
				logging.Error(subsystem, err, "Gateway promotion failed, unit outcomes preserved")
			}
		}
	}

	m, err := s.recorder.Finalize(s.env.Name)
	if err != nil {
		return nil, failedCount, err
	}

	succeeded := 0
	for _, svc := range m.Services {
		if svc.Status == manifest.StatusSucceeded {
			succeeded++
		}
	}
	s.reporter.RunCompleted(total, succeeded, failedCount)

	if s.opts.DryRun {
		// Validation problems show up in the manifest, but a dry run
		// never fails the process.
		return &m, 0, runErr
	}
	return &m, failedCount, runErr
}

// runPhase launches the phase's units under the concurrency bound and waits
// for all of them. The first failure stops further launches; units already
// in flight finish.
func (s *Scheduler) runPhase(ctx context.Context, phase registry.PhaseGroup) int {
	k := s.opts.Concurrency
	if k < 1 {
		k = 1
	}

	sem := make(chan struct{}, k)
	var wg sync.WaitGroup
	var failed atomic.Int32

	stopLaunching := func() bool {
		if ctx.Err() != nil {
			return true
		}
		// Dry runs validate everything regardless of earlier failures.
		return failed.Load() > 0 && !s.opts.DryRun
	}

launch:
	for _, desc := range phase.Services {
		if stopLaunching() {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break launch
		}
		// A unit may have failed while we waited for a slot.
		if stopLaunching() {
			<-sem
			break
		}

		wg.Add(1)
		go func(desc registry.Descriptor) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.pipeline.run(ctx, desc); err != nil {
				failed.Add(1)
			}
		}(desc)
	}

	wg.Wait()
	return int(failed.Load())
}

func (s *Scheduler) shouldPromote(ctx context.Context, failedCount int) bool {
	if s.opts.DryRun || s.opts.SkipGateway {
		return false
	}
	if s.env.Gateway.Name == "" {
		return false
	}
	if failedCount > 0 || ctx.Err() != nil {
		return false
	}
	return true
}
