package orchestrator

import (
	"context"

	"rolloutctl/internal/cloud"
	"rolloutctl/pkg/logging"
)

// RollbackController reverts a failed unit to its previous revision. It only
// acts when a previous revision exists; a first deploy has nowhere to go.
type RollbackController struct {
	plane cloud.ControlPlane
}

// NewRollbackController creates a controller.
func NewRollbackController(plane cloud.ControlPlane) *RollbackController {
	return &RollbackController{plane: plane}
}

// Rollback routes the unit back to the revision before the failed one and
// returns that revision. cloud.ErrNoPreviousRevision passes through
// unwrapped so callers can turn it into a warning instead of an error.
func (r *RollbackController) Rollback(ctx context.Context, id, service string) (string, error) {
	previous, err := r.plane.PreviousRevision(ctx, id)
	if err != nil {
		return "", err
	}

	logging.Warn("rollback", "Reverting %s to revision %s", service, previous)
	if err := r.plane.RouteTraffic(ctx, id, previous); err != nil {
		return previous, err
	}
	return previous, nil
}

// Freeze is the operator's full stop for a unit: scale to zero and restrict
// ingress. It is never invoked by the scheduler's failure path.
func (r *RollbackController) Freeze(ctx context.Context, id, service string) error {
	logging.Warn("rollback", "Freezing %s", service)
	return r.plane.Freeze(ctx, id)
}
