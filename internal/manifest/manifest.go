// Package manifest tracks per-unit deployment outcomes through a monotonic
// state machine and writes the run's audit manifest in a single atomic file
// operation.
package manifest

import (
	"time"
)

// Status is a unit's position in the deployment lifecycle.
type Status string

const (
	StatusPending        Status = "Pending"
	StatusDeploying      Status = "Deploying"
	StatusAwaitingReady  Status = "AwaitingReady"
	StatusHealthChecking Status = "HealthChecking"
	StatusBinding        Status = "Binding"
	StatusSucceeded      Status = "Succeeded"
	StatusFailed         Status = "Failed"
	StatusRolledBack     Status = "RolledBack"
	StatusDryRun         Status = "DryRun"
)

// Terminal reports whether a unit in this status is done for the run.
// RolledBack is the one status reachable from another terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusRolledBack, StatusDryRun:
		return true
	default:
		return false
	}
}

// allowedTransitions is the whole lifecycle. Anything absent is rejected,
// which is what keeps recorded outcomes monotonic.
var allowedTransitions = map[Status][]Status{
	StatusPending:        {StatusDeploying, StatusDryRun, StatusFailed},
	StatusDeploying:      {StatusAwaitingReady, StatusFailed},
	StatusAwaitingReady:  {StatusHealthChecking, StatusFailed},
	StatusHealthChecking: {StatusBinding, StatusFailed},
	StatusBinding:        {StatusSucceeded, StatusFailed},
	StatusFailed:         {StatusRolledBack},
	StatusSucceeded:      {},
	StatusRolledBack:     {},
	StatusDryRun:         {},
}

func transitionAllowed(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Health values recorded alongside outcomes.
const (
	HealthUnknown   = "unknown"
	HealthHealthy   = "healthy"
	HealthNotReady  = "not_ready"
	HealthUnhealthy = "unhealthy"
	HealthSkipped   = "skipped"
)

// Transition is one recorded status change.
type Transition struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// Outcome is the full record of one unit in one run.
type Outcome struct {
	Service     string
	Phase       int
	Status      Status
	EndpointURL string
	Health      string
	Revision    string
	StartedAt   time.Time
	Duration    time.Duration
	LogRef      string
	Warnings    []string
	Err         string
	History     []Transition
}

// ServiceResult is the manifest's JSON form of an outcome.
type ServiceResult struct {
	Service         string   `json:"service"`
	Phase           int      `json:"phase"`
	Status          Status   `json:"status"`
	URL             string   `json:"url,omitempty"`
	DurationSeconds float64  `json:"durationSeconds"`
	Health          string   `json:"health"`
	Revision        string   `json:"revision,omitempty"`
	LogFile         string   `json:"logFile,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Manifest is the single audit artifact of a run. It covers every selected
// unit, including the ones that never started.
type Manifest struct {
	DeploymentTimestamp time.Time       `json:"deploymentTimestamp"`
	Environment         string          `json:"environment"`
	RunID               string          `json:"runId"`
	Services            []ServiceResult `json:"services"`
}

// FailedCount is the number of units that ended the run failed; a rolled
// back unit still counts as failed.
func (m Manifest) FailedCount() int {
	count := 0
	for _, svc := range m.Services {
		if svc.Status == StatusFailed || svc.Status == StatusRolledBack {
			count++
		}
	}
	return count
}

func (o Outcome) toResult() ServiceResult {
	return ServiceResult{
		Service:         o.Service,
		Phase:           o.Phase,
		Status:          o.Status,
		URL:             o.EndpointURL,
		DurationSeconds: o.Duration.Seconds(),
		Health:          o.Health,
		Revision:        o.Revision,
		LogFile:         o.LogRef,
		Warnings:        o.Warnings,
		Error:           o.Err,
	}
}
