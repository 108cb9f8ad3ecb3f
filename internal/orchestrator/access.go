package orchestrator

import (
	"context"
	"fmt"

	"rolloutctl/internal/cloud"
	"rolloutctl/pkg/logging"
)

// AccessReconciler converges a unit's invoker bindings toward the desired
// set. It is additive only: missing bindings are granted, present ones are
// left alone, nothing is ever revoked.
type AccessReconciler struct {
	plane cloud.ControlPlane
}

// NewAccessReconciler creates a reconciler.
func NewAccessReconciler(plane cloud.ControlPlane) *AccessReconciler {
	return &AccessReconciler{plane: plane}
}

// Reconcile lists the current bindings fresh, diffs against desired and adds
// only what is missing. A second run with an unchanged desired set performs
// zero mutations. The first grant failure stops the pass and is returned as
// a *cloud.AccessError; bindings granted before it stay granted.
func (r *AccessReconciler) Reconcile(ctx context.Context, id, service string, desired []cloud.AccessBinding) (int, error) {
	if len(desired) == 0 {
		return 0, nil
	}

	current, err := r.plane.ListBindings(ctx, id)
	if err != nil {
		return 0, &cloud.AccessError{Service: service, Err: fmt.Errorf("listing bindings: %w", err)}
	}

	present := make(map[string]bool, len(current))
	for _, b := range current {
		present[bindingKey(b)] = true
	}

	applied := 0
	for _, b := range desired {
		if present[bindingKey(b)] {
			continue
		}
		if err := r.plane.AddBinding(ctx, id, b); err != nil {
			return applied, &cloud.AccessError{Service: service, Principal: b.Principal, Err: err}
		}
		applied++
		logging.Info("access", "Granted %s as %s on %s", b.Principal, b.Role, service)
	}

	if applied == 0 {
		logging.Debug("access", "Bindings for %s already converged (%d present)", service, len(current))
	}
	return applied, nil
}

func bindingKey(b cloud.AccessBinding) string {
	return string(b.Principal) + "|" + string(b.Role)
}
