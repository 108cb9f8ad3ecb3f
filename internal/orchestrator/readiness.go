package orchestrator

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"rolloutctl/internal/cloud"
	"rolloutctl/internal/config"
	"rolloutctl/pkg/logging"
)

// backoffFor translates retry settings into a fixed-interval backoff. Factor
// 1.0 keeps the poll cadence constant; the deadline context bounds the total.
func backoffFor(settings config.RetrySettings) wait.Backoff {
	return wait.Backoff{
		Duration: time.Duration(settings.IntervalSeconds) * time.Second,
		Factor:   1.0,
		Steps:    settings.MaxAttempts,
	}
}

// ReadinessWaiter polls Describe until a unit reports ready, its retry policy
// is exhausted or the context ends.
type ReadinessWaiter struct {
	plane    cloud.ControlPlane
	backoff  wait.Backoff
	deadline time.Duration
}

// NewReadinessWaiter creates a waiter for one environment's retry settings.
func NewReadinessWaiter(plane cloud.ControlPlane, settings config.RetrySettings) *ReadinessWaiter {
	settings = settings.OrDefault()
	return &ReadinessWaiter{
		plane:    plane,
		backoff:  backoffFor(settings),
		deadline: time.Duration(settings.DeadlineSeconds) * time.Second,
	}
}

// Wait blocks until the unit is ready. Every attempt reads fresh status from
// the control plane. Policy exhaustion returns a *cloud.ReadinessTimeout
// carrying the last observed reason; caller cancellation is passed through
// untouched so the scheduler can tell the two apart.
func (w *ReadinessWaiter) Wait(ctx context.Context, id, service string) (cloud.ResourceStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, w.deadline)
	defer cancel()

	start := time.Now()
	attempts := 0
	lastReason := ""
	var last cloud.ResourceStatus

	err := wait.ExponentialBackoffWithContext(ctx, w.backoff, func(ctx context.Context) (bool, error) {
		attempts++
		status, err := w.plane.Describe(ctx, id)
		if err != nil {
			var notFound *cloud.NotFoundError
			if errors.As(err, &notFound) {
				// The unit vanished under us, retrying cannot help.
				return false, err
			}
			lastReason = err.Error()
			logging.Debug("readiness", "Describe of %s failed on attempt %d: %v", service, attempts, err)
			return false, nil
		}
		last = status
		if status.Ready {
			logging.Debug("readiness", "%s ready after %d attempts", service, attempts)
			return true, nil
		}
		lastReason = status.Reason
		logging.Debug("readiness", "%s not ready on attempt %d: %s", service, attempts, status.Reason)
		return false, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return last, err
		}
		if wait.Interrupted(err) {
			return last, &cloud.ReadinessTimeout{
				Service:    service,
				Attempts:   attempts,
				Elapsed:    time.Since(start),
				LastReason: lastReason,
			}
		}
		return last, err
	}
	return last, nil
}
