package reporting

import (
	"rolloutctl/internal/manifest"
	"rolloutctl/pkg/logging"
)

// Reporter is the single mouth of the rollout. Every progress observation is
// logged through pkg/logging and published on the event bus, so the console,
// the watch dashboard and the agent all see the same stream.
type Reporter struct {
	bus         EventBus
	environment string
	runID       string
}

// NewReporter creates a reporter bound to one rollout run. A nil bus gets
// replaced with a fresh one so callers without subscribers still work.
func NewReporter(bus EventBus, environment, runID string) *Reporter {
	if bus == nil {
		bus = NewEventBus()
	}
	return &Reporter{
		bus:         bus,
		environment: environment,
		runID:       runID,
	}
}

// Bus returns the underlying event bus for subscribers.
func (r *Reporter) Bus() EventBus {
	return r.bus
}

// RunID returns the identifier of the run this reporter belongs to.
func (r *Reporter) RunID() string {
	return r.runID
}

// UnitStatus reports a unit reaching a lifecycle status.
func (r *Reporter) UnitStatus(service string, phase int, status manifest.Status, detail string) {
	r.emit(NewUnitEvent(service, phase, status, detail))
}

// UnitWarning reports a non-fatal problem attached to a unit.
func (r *Reporter) UnitWarning(service, detail string) {
	r.emit(NewWarningEvent(service, detail))
}

// PhaseStarted reports the beginning of a phase.
func (r *Reporter) PhaseStarted(number, units int) {
	r.emit(NewPhaseEvent(EventTypePhaseStarted, number, units, 0))
}

// PhaseCompleted reports the end of a phase, including its failure count.
func (r *Reporter) PhaseCompleted(number, units, failed int) {
	r.emit(NewPhaseEvent(EventTypePhaseCompleted, number, units, failed))
}

// RunStarted reports the beginning of the rollout run.
func (r *Reporter) RunStarted(units int) {
	r.emit(NewRunEvent(EventTypeRunStarted, r.environment, r.runID, units, 0, 0))
}

// RunCompleted reports the end of the rollout run with final tallies.
func (r *Reporter) RunCompleted(units, succeeded, failed int) {
	r.emit(NewRunEvent(EventTypeRunCompleted, r.environment, r.runID, units, succeeded, failed))
}

// Compensating reports a saga undo being attempted.
func (r *Reporter) Compensating(resource string) {
	r.emit(NewCompensationEvent(resource, nil))
}

// CompensationFailed reports a saga undo that did not stick.
func (r *Reporter) CompensationFailed(resource string, err error) {
	r.emit(NewCompensationEvent(resource, err))
}

// Close shuts down the bus and all subscriptions.
func (r *Reporter) Close() {
	r.bus.Close()
}

func (r *Reporter) emit(event Event) {
	r.log(event)
	r.bus.Publish(event)
}

func (r *Reporter) log(event Event) {
	subsystem := subsystemFor(event)
	switch event.Severity() {
	case SeverityError:
		logging.Error(subsystem, nil, "%s", event.String())
	case SeverityWarn:
		logging.Warn(subsystem, "%s", event.String())
	case SeverityInfo:
		logging.Info(subsystem, "%s", event.String())
	default:
		logging.Debug(subsystem, "%s", event.String())
	}
}

func subsystemFor(event Event) string {
	switch event.(type) {
	case UnitEvent, WarningEvent:
		return "unit"
	default:
		return event.Source()
	}
}
