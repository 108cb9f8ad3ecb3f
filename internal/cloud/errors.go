package cloud

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for control-plane lookups.
var (
	// ErrNoPreviousRevision means the unit has a single revision and
	// nothing to roll back to.
	ErrNoPreviousRevision = errors.New("no previous revision to roll back to")
)

// ConfigError reports an invalid or incomplete rendered configuration.
// Raised before any control-plane mutation.
type ConfigError struct {
	Service string
	Field   string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration for %s: %s: %s", e.Service, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid configuration for %s: %s", e.Service, e.Reason)
}

// DeployError is a control-plane rejection of a submit, preserving the
// platform's own code and message.
type DeployError struct {
	Service string
	Code    string
	Message string
}

func (e *DeployError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("deploy of %s rejected (%s): %s", e.Service, e.Code, e.Message)
	}
	return fmt.Sprintf("deploy of %s rejected: %s", e.Service, e.Message)
}

// ReadinessTimeout means a unit never reported ready within the retry policy.
type ReadinessTimeout struct {
	Service    string
	Attempts   int
	Elapsed    time.Duration
	LastReason string
}

func (e *ReadinessTimeout) Error() string {
	msg := fmt.Sprintf("%s not ready after %d attempts over %s", e.Service, e.Attempts, e.Elapsed.Round(time.Millisecond))
	if e.LastReason != "" {
		msg += ": " + e.LastReason
	}
	return msg
}

// HealthCheckError reports a failed endpoint health probe. StatusCode is
// zero when the request itself failed before a response arrived.
type HealthCheckError struct {
	Service    string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *HealthCheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("health probe of %s at %s failed: %v", e.Service, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("health probe of %s at %s returned status %d", e.Service, e.Endpoint, e.StatusCode)
}

func (e *HealthCheckError) Unwrap() error { return e.Err }

// AccessError reports a failed binding reconciliation for one principal.
// Non-fatal by default; strict-access mode escalates it.
type AccessError struct {
	Service   string
	Principal Principal
	Err       error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("binding %s on %s failed: %v", e.Principal, e.Service, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// CompensationError records one failed saga undo. Collected, never raised
// past the remaining compensations.
type CompensationError struct {
	Resource SagaResource
	Err      error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation of %s failed: %v", e.Resource, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }

// NotFoundError reports a unit or gateway the control plane does not know.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
