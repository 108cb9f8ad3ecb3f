package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"rolloutctl/internal/cloud"
	"rolloutctl/internal/config"
	"rolloutctl/internal/manifest"
	"rolloutctl/internal/registry"
	"rolloutctl/internal/render"
	"rolloutctl/internal/reporting"
)

// unitPipeline runs one unit through render, submit, readiness, health and
// access binding, recording every step. One pipeline is shared by all
// workers of a run; it holds no per-unit state.
type unitPipeline struct {
	plane     cloud.ControlPlane
	env       config.Environment
	templates []config.Template
	readiness *ReadinessWaiter
	probe     *HealthProbe
	access    *AccessReconciler
	rollback  *RollbackController
	recorder  *manifest.Recorder
	reporter  *reporting.Reporter
	opts      Options
}

// run moves the unit to a terminal status and returns non-nil when that
// status is Failed or RolledBack.
func (p *unitPipeline) run(ctx context.Context, desc registry.Descriptor) error {
	service := desc.Name
	p.recorder.Begin(service, desc.Phase)

	spec, err := p.renderSpec(desc)
	if err != nil {
		// Nothing was submitted, so there is nothing to roll back.
		return p.fail(desc, err)
	}

	if p.opts.DryRun {
		p.recorder.SetHealth(service, manifest.HealthSkipped)
		p.transition(desc, manifest.StatusDryRun, "validated, nothing deployed")
		return nil
	}

	p.transition(desc, manifest.StatusDeploying, "")
	// The submit itself must not be torn mid-flight by a cancel; the
	// cancellation point is before the next unit launches.
	handle, err := p.plane.Submit(context.WithoutCancel(ctx), spec)
	if err != nil {
		return p.fail(desc, err)
	}
	p.recorder.SetEndpoint(service, handle.EndpointURL)
	if handle.Revision != "" {
		p.recorder.SetRevision(service, handle.Revision)
	}

	p.transition(desc, manifest.StatusAwaitingReady, "")
	status, err := p.readiness.Wait(ctx, handle.ID, service)
	if err != nil {
		var timeout *cloud.ReadinessTimeout
		if errors.As(err, &timeout) {
			p.recorder.SetHealth(service, manifest.HealthNotReady)
		}
		return p.failDeployed(ctx, desc, handle.ID, err)
	}
	if status.Revision != "" {
		p.recorder.SetRevision(service, status.Revision)
	}

	p.transition(desc, manifest.StatusHealthChecking, "")
	if err := p.probe.Check(ctx, service, handle.EndpointURL, spec.HealthPath); err != nil {
		p.recorder.SetHealth(service, manifest.HealthUnhealthy)
		return p.failDeployed(ctx, desc, handle.ID, err)
	}
	p.recorder.SetHealth(service, manifest.HealthHealthy)

	p.transition(desc, manifest.StatusBinding, "")
	applied, err := p.access.Reconcile(ctx, handle.ID, service, desc.Invokers)
	if err != nil {
		if p.opts.StrictAccess {
			return p.failDeployed(ctx, desc, handle.ID, err)
		}
		p.warn(desc.Name, err.Error())
	}

	detail := ""
	if applied > 0 {
		detail = fmt.Sprintf("%d bindings applied", applied)
	}
	p.transition(desc, manifest.StatusSucceeded, detail)
	return nil
}

func (p *unitPipeline) renderSpec(desc registry.Descriptor) (cloud.ServiceSpec, error) {
	tmpl := config.Template{}
	if desc.Template != "" {
		found := false
		for _, t := range p.templates {
			if t.Name == desc.Template {
				tmpl = t
				found = true
				break
			}
		}
		if !found {
			return cloud.ServiceSpec{}, &cloud.ConfigError{
				Service: desc.Name,
				Field:   "template",
				Reason:  fmt.Sprintf("template %q not defined", desc.Template),
			}
		}
	}
	return render.Render(desc, tmpl, p.env, render.Options{SkipValidation: p.opts.SkipValidation})
}

// transition applies a recorder transition and mirrors it onto the event
// bus. The recorder is the gate: a rejected transition is never reported.
func (p *unitPipeline) transition(desc registry.Descriptor, to manifest.Status, detail string) {
	if err := p.recorder.Transition(desc.Name, to); err != nil {
		return
	}
	p.reporter.UnitStatus(desc.Name, desc.Phase, to, detail)
}

func (p *unitPipeline) warn(service, warning string) {
	p.recorder.AddWarning(service, warning)
	p.reporter.UnitWarning(service, warning)
}

// fail marks the unit Failed without touching the control plane.
func (p *unitPipeline) fail(desc registry.Descriptor, cause error) error {
	if err := p.recorder.Fail(desc.Name, cause); err == nil {
		p.reporter.UnitStatus(desc.Name, desc.Phase, manifest.StatusFailed, cause.Error())
	}
	return cause
}

// failDeployed marks the unit Failed and attempts the targeted rollback,
// which only applies once a submit has gone through.
func (p *unitPipeline) failDeployed(ctx context.Context, desc registry.Descriptor, id string, cause error) error {
	if err := p.recorder.Fail(desc.Name, cause); err == nil {
		p.reporter.UnitStatus(desc.Name, desc.Phase, manifest.StatusFailed, cause.Error())
	}
	if p.opts.NoRollback {
		return cause
	}

	// The revert is a compensating mutation: let it finish even when the
	// operator has already cancelled the run.
	rbCtx := context.WithoutCancel(ctx)
	revision, err := p.rollback.Rollback(rbCtx, id, desc.Name)
	if err != nil {
		if errors.Is(err, cloud.ErrNoPreviousRevision) {
			p.warn(desc.Name, "no previous revision, leaving failed deployment in place")
		} else {
			p.warn(desc.Name, fmt.Sprintf("rollback failed, manual intervention required: %v", err))
		}
		return cause
	}

	if err := p.recorder.Transition(desc.Name, manifest.StatusRolledBack); err == nil {
		p.recorder.SetRevision(desc.Name, revision)
		p.reporter.UnitStatus(desc.Name, desc.Phase, manifest.StatusRolledBack, "reverted to revision "+revision)
	}
	return cause
}
