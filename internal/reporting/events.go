// Package reporting carries rollout progress from the orchestrator to its
// consumers: the console log, the watch dashboard and the agent endpoint.
// Producers publish typed events on a bus that never blocks them.
package reporting

import (
	"fmt"
	"sync/atomic"
	"time"

	"rolloutctl/internal/manifest"
)

// EventType defines the type of event
type EventType string

const (
	EventTypeUnitStatus     EventType = "unit.status"
	EventTypeUnitWarning    EventType = "unit.warning"
	EventTypePhaseStarted   EventType = "phase.started"
	EventTypePhaseCompleted EventType = "phase.completed"
	EventTypeRunStarted     EventType = "run.started"
	EventTypeRunCompleted   EventType = "run.completed"
	EventTypeCompensation   EventType = "saga.compensating"
)

// EventSeverity indicates the importance of an event
type EventSeverity string

const (
	SeverityDebug EventSeverity = "debug"
	SeverityInfo  EventSeverity = "info"
	SeverityWarn  EventSeverity = "warn"
	SeverityError EventSeverity = "error"
)

// Event is the base interface for all events in the system
type Event interface {
	// Type returns the event type
	Type() EventType

	// Source returns the component or unit that generated this event
	Source() string

	// Timestamp returns when the event occurred
	Timestamp() time.Time

	// Severity returns the event severity
	Severity() EventSeverity

	// String returns a human-readable description of the event
	String() string
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	EventType     EventType     `json:"type"`
	SourceLabel   string        `json:"source"`
	EventTime     time.Time     `json:"timestamp"`
	EventSeverity EventSeverity `json:"severity"`
}

func (e BaseEvent) Type() EventType         { return e.EventType }
func (e BaseEvent) Source() string          { return e.SourceLabel }
func (e BaseEvent) Timestamp() time.Time    { return e.EventTime }
func (e BaseEvent) Severity() EventSeverity { return e.EventSeverity }
func (e BaseEvent) String() string          { return string(e.EventType) + " from " + e.SourceLabel }

// UnitEvent reports one unit reaching a lifecycle status.
type UnitEvent struct {
	BaseEvent
	Service string          `json:"service"`
	Phase   int             `json:"phase"`
	Status  manifest.Status `json:"status"`
	Detail  string          `json:"detail,omitempty"`
}

func (e UnitEvent) String() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (phase %d) %s: %s", e.Service, e.Phase, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s (phase %d) %s", e.Service, e.Phase, e.Status)
}

// WarningEvent reports a non-fatal problem attached to a unit.
type WarningEvent struct {
	BaseEvent
	Service string `json:"service"`
	Detail  string `json:"detail"`
}

func (e WarningEvent) String() string {
	return fmt.Sprintf("%s warning: %s", e.Service, e.Detail)
}

// PhaseEvent brackets a phase of the rollout.
type PhaseEvent struct {
	BaseEvent
	Number int `json:"number"`
	Units  int `json:"units"`
	Failed int `json:"failed,omitempty"`
}

func (e PhaseEvent) String() string {
	if e.EventType == EventTypePhaseCompleted {
		return fmt.Sprintf("phase %d completed, %d of %d units failed", e.Number, e.Failed, e.Units)
	}
	return fmt.Sprintf("phase %d started with %d units", e.Number, e.Units)
}

// RunEvent brackets a whole rollout run.
type RunEvent struct {
	BaseEvent
	Environment string `json:"environment"`
	RunID       string `json:"runId"`
	Units       int    `json:"units"`
	Succeeded   int    `json:"succeeded,omitempty"`
	Failed      int    `json:"failed,omitempty"`
}

func (e RunEvent) String() string {
	if e.EventType == EventTypeRunCompleted {
		return fmt.Sprintf("rollout of %s completed: %d succeeded, %d failed", e.Environment, e.Succeeded, e.Failed)
	}
	return fmt.Sprintf("rollout of %s started with %d units", e.Environment, e.Units)
}

// CompensationEvent reports one saga undo being attempted or having failed.
type CompensationEvent struct {
	BaseEvent
	Resource string `json:"resource"`
	Err      string `json:"error,omitempty"`
}

func (e CompensationEvent) String() string {
	if e.Err != "" {
		return fmt.Sprintf("compensation of %s failed: %s", e.Resource, e.Err)
	}
	return "compensating " + e.Resource
}

// NewUnitEvent creates a unit status event with severity derived from the
// status.
func NewUnitEvent(service string, phase int, status manifest.Status, detail string) UnitEvent {
	return UnitEvent{
		BaseEvent: BaseEvent{
			EventType:     EventTypeUnitStatus,
			SourceLabel:   service,
			EventTime:     time.Now(),
			EventSeverity: severityForStatus(status),
		},
		Service: service,
		Phase:   phase,
		Status:  status,
		Detail:  detail,
	}
}

// NewWarningEvent creates a unit warning event.
func NewWarningEvent(service, detail string) WarningEvent {
	return WarningEvent{
		BaseEvent: BaseEvent{
			EventType:     EventTypeUnitWarning,
			SourceLabel:   service,
			EventTime:     time.Now(),
			EventSeverity: SeverityWarn,
		},
		Service: service,
		Detail:  detail,
	}
}

// NewPhaseEvent creates a phase bracket event.
func NewPhaseEvent(eventType EventType, number, units, failed int) PhaseEvent {
	severity := SeverityInfo
	if eventType == EventTypePhaseCompleted && failed > 0 {
		severity = SeverityWarn
	}
	return PhaseEvent{
		BaseEvent: BaseEvent{
			EventType:     eventType,
			SourceLabel:   "scheduler",
			EventTime:     time.Now(),
			EventSeverity: severity,
		},
		Number: number,
		Units:  units,
		Failed: failed,
	}
}

// NewRunEvent creates a run bracket event.
func NewRunEvent(eventType EventType, environment, runID string, units, succeeded, failed int) RunEvent {
	severity := SeverityInfo
	if eventType == EventTypeRunCompleted && failed > 0 {
		severity = SeverityError
	}
	return RunEvent{
		BaseEvent: BaseEvent{
			EventType:     eventType,
			SourceLabel:   "scheduler",
			EventTime:     time.Now(),
			EventSeverity: severity,
		},
		Environment: environment,
		RunID:       runID,
		Units:       units,
		Succeeded:   succeeded,
		Failed:      failed,
	}
}

// NewCompensationEvent creates a saga compensation event.
func NewCompensationEvent(resource string, err error) CompensationEvent {
	severity := SeverityWarn
	errText := ""
	if err != nil {
		severity = SeverityError
		errText = err.Error()
	}
	return CompensationEvent{
		BaseEvent: BaseEvent{
			EventType:     EventTypeCompensation,
			SourceLabel:   "saga",
			EventTime:     time.Now(),
			EventSeverity: severity,
		},
		Resource: resource,
		Err:      errText,
	}
}

func severityForStatus(status manifest.Status) EventSeverity {
	switch status {
	case manifest.StatusFailed:
		return SeverityError
	case manifest.StatusRolledBack:
		return SeverityWarn
	case manifest.StatusSucceeded, manifest.StatusDryRun:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}

var correlationCounter atomic.Int64

// GenerateCorrelationID returns a process-unique identifier for tying a
// subscription or event chain together.
func GenerateCorrelationID() string {
	return fmt.Sprintf("evt-%d-%d", time.Now().UnixNano(), correlationCounter.Add(1))
}
