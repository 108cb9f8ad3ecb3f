package orchestrator

import (
	"context"
	"sync"

	"rolloutctl/internal/cloud"
	"rolloutctl/internal/reporting"
	"rolloutctl/pkg/logging"
)

// CompensationFunc undoes one previously applied step. It must be safe to
// call even when the step's effect has already disappeared.
type CompensationFunc func(ctx context.Context) error

type sagaStep struct {
	resource cloud.SagaResource
	undo     CompensationFunc
}

// Saga records applied mutations so they can be unwound in reverse order.
// Track after each successful step; Compensate on the first failed one.
type Saga struct {
	mu       sync.Mutex
	steps    []sagaStep
	reporter *reporting.Reporter
}

// NewSaga creates an empty saga. The reporter may be nil, in which case
// compensation progress is only logged.
func NewSaga(reporter *reporting.Reporter) *Saga {
	return &Saga{reporter: reporter}
}

// Track registers the undo for an applied step.
func (s *Saga) Track(resource cloud.SagaResource, undo CompensationFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, sagaStep{resource: resource, undo: undo})
	logging.Debug("saga", "Tracked %s for compensation (%d steps)", resource, len(s.steps))
}

// Len returns the number of tracked steps.
func (s *Saga) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Compensate runs every tracked undo in reverse order. Each failure is
// collected and the remaining undos still run; the caller surfaces the
// collected errors as warnings. The tracked steps are consumed.
func (s *Saga) Compensate(ctx context.Context) []*cloud.CompensationError {
	s.mu.Lock()
	steps := s.steps
	s.steps = nil
	s.mu.Unlock()

	var failures []*cloud.CompensationError
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if s.reporter != nil {
			s.reporter.Compensating(step.resource.String())
		}
		if err := step.undo(ctx); err != nil {
			failure := &cloud.CompensationError{Resource: step.resource, Err: err}
			failures = append(failures, failure)
			if s.reporter != nil {
				s.reporter.CompensationFailed(step.resource.String(), err)
			} else {
				logging.Error("saga", err, "Compensation of %s failed", step.resource)
			}
		}
	}
	return failures
}
