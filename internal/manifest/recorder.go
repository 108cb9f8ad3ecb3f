package manifest

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rolloutctl/pkg/logging"
)

const subsystem = "manifest"

// Recorder collects outcomes from concurrently running unit workers. It is
// the only structure in a run with multiple writers; a single mutex guards
// it. Terminal statuses are never overwritten: invalid transitions are
// rejected with an error and the stored outcome stays as it was.
type Recorder struct {
	mu        sync.Mutex
	now       func() time.Time
	runID     string
	outcomes  map[string]*Outcome
	order     []string
	finalized bool
}

// NewRecorder starts an empty recorder with a fresh run ID.
func NewRecorder() *Recorder {
	return &Recorder{
		now:      time.Now,
		runID:    uuid.NewString(),
		outcomes: make(map[string]*Outcome),
	}
}

// RunID identifies this run in the manifest and in agent responses.
func (r *Recorder) RunID() string {
	return r.runID
}

// Begin registers a unit as Pending. Registration order becomes manifest
// order.
func (r *Recorder) Begin(service string, phase int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.outcomes[service]; exists {
		return
	}
	r.outcomes[service] = &Outcome{
		Service:   service,
		Phase:     phase,
		Status:    StatusPending,
		Health:    HealthUnknown,
		StartedAt: r.now(),
	}
	r.order = append(r.order, service)
}

// Transition moves a unit to the next status. A transition the lifecycle
// does not allow is rejected and logged, never applied.
func (r *Recorder) Transition(service string, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome, ok := r.outcomes[service]
	if !ok {
		return fmt.Errorf("transition of unregistered unit %q", service)
	}
	if !transitionAllowed(outcome.Status, to) {
		err := fmt.Errorf("invalid transition %s -> %s for %s", outcome.Status, to, service)
		logging.Warn(subsystem, "%v", err)
		return err
	}
	at := r.now()
	outcome.History = append(outcome.History, Transition{From: outcome.Status, To: to, At: at})
	outcome.Status = to
	if to.Terminal() && outcome.Duration == 0 {
		outcome.Duration = at.Sub(outcome.StartedAt)
	}
	return nil
}

// Fail moves a unit to Failed and records the cause.
func (r *Recorder) Fail(service string, cause error) error {
	if err := r.Transition(service, StatusFailed); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if outcome, ok := r.outcomes[service]; ok && cause != nil {
		outcome.Err = cause.Error()
	}
	return nil
}

// SetEndpoint records the unit's serving URL.
func (r *Recorder) SetEndpoint(service, url string) {
	r.set(service, func(o *Outcome) { o.EndpointURL = url })
}

// SetRevision records the revision this run created or restored.
func (r *Recorder) SetRevision(service, revision string) {
	r.set(service, func(o *Outcome) { o.Revision = revision })
}

// SetHealth records the last observed health classification.
func (r *Recorder) SetHealth(service, health string) {
	r.set(service, func(o *Outcome) { o.Health = health })
}

// SetLogRef records where the unit's deploy log went.
func (r *Recorder) SetLogRef(service, ref string) {
	r.set(service, func(o *Outcome) { o.LogRef = ref })
}

// AddWarning appends a non-fatal problem to the unit's record.
func (r *Recorder) AddWarning(service, warning string) {
	r.set(service, func(o *Outcome) { o.Warnings = append(o.Warnings, warning) })
}

func (r *Recorder) set(service string, mutate func(*Outcome)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if outcome, ok := r.outcomes[service]; ok {
		mutate(outcome)
	}
}

// Get returns a copy of one unit's outcome.
func (r *Recorder) Get(service string) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome, ok := r.outcomes[service]
	if !ok {
		return Outcome{}, false
	}
	return copyOutcome(outcome), true
}

// Snapshot returns copies of all outcomes in registration order. Safe to
// call while workers are still writing; the watch dashboard polls it.
func (r *Recorder) Snapshot() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, 0, len(r.order))
	for _, service := range r.order {
		out = append(out, copyOutcome(r.outcomes[service]))
	}
	return out
}

// FailedCount counts units whose outcome is Failed or RolledBack.
func (r *Recorder) FailedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, outcome := range r.outcomes {
		if outcome.Status == StatusFailed || outcome.Status == StatusRolledBack {
			count++
		}
	}
	return count
}

// Finalize builds the manifest exactly once. A second call is a programming
// error and fails.
func (r *Recorder) Finalize(environment string) (Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return Manifest{}, fmt.Errorf("manifest for run %s already finalized", r.runID)
	}
	r.finalized = true

	m := Manifest{
		DeploymentTimestamp: r.now().UTC(),
		Environment:         environment,
		RunID:               r.runID,
		Services:            make([]ServiceResult, 0, len(r.order)),
	}
	for _, service := range r.order {
		m.Services = append(m.Services, r.outcomes[service].toResult())
	}
	return m, nil
}

func copyOutcome(o *Outcome) Outcome {
	cp := *o
	cp.Warnings = append([]string(nil), o.Warnings...)
	cp.History = append([]Transition(nil), o.History...)
	return cp
}
