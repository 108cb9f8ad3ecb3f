package manifest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder() (*Recorder, *time.Time) {
	r := NewRecorder()
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestRecorderHappyPath(t *testing.T) {
	r, now := newTestRecorder()
	r.Begin("billing-api", 2)

	require.NoError(t, r.Transition("billing-api", StatusDeploying))
	require.NoError(t, r.Transition("billing-api", StatusAwaitingReady))
	require.NoError(t, r.Transition("billing-api", StatusHealthChecking))
	require.NoError(t, r.Transition("billing-api", StatusBinding))

	*now = now.Add(42 * time.Second)
	require.NoError(t, r.Transition("billing-api", StatusSucceeded))

	outcome, ok := r.Get("billing-api")
	require.True(t, ok)
	assert.Equal(t, StatusSucceeded, outcome.Status)
	assert.Equal(t, 42*time.Second, outcome.Duration)
	assert.Len(t, outcome.History, 5)
	assert.Equal(t, StatusPending, outcome.History[0].From)
	assert.Equal(t, StatusSucceeded, outcome.History[4].To)
}

func TestTerminalStatusNeverOverwritten(t *testing.T) {
	r, _ := newTestRecorder()
	r.Begin("ledger", 1)
	require.NoError(t, r.Transition("ledger", StatusDeploying))
	require.NoError(t, r.Fail("ledger", errors.New("quota exhausted")))

	// Nothing moves a failed unit forward again.
	assert.Error(t, r.Transition("ledger", StatusSucceeded))
	assert.Error(t, r.Transition("ledger", StatusDeploying))
	assert.Error(t, r.Transition("ledger", StatusPending))

	outcome, _ := r.Get("ledger")
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "quota exhausted", outcome.Err)
}

func TestFailedToRolledBackIsTheOnlyTerminalTransition(t *testing.T) {
	r, _ := newTestRecorder()
	r.Begin("ledger", 1)
	require.NoError(t, r.Transition("ledger", StatusDeploying))
	require.NoError(t, r.Fail("ledger", errors.New("readiness timeout")))

	require.NoError(t, r.Transition("ledger", StatusRolledBack))
	assert.Error(t, r.Transition("ledger", StatusFailed))
	assert.Error(t, r.Transition("ledger", StatusSucceeded))

	r.Begin("auth", 1)
	require.NoError(t, r.Transition("auth", StatusDryRun))
	assert.Error(t, r.Transition("auth", StatusDeploying))
	assert.Error(t, r.Transition("auth", StatusRolledBack))
}

func TestTransitionCannotSkipStages(t *testing.T) {
	r, _ := newTestRecorder()
	r.Begin("ledger", 1)
	assert.Error(t, r.Transition("ledger", StatusHealthChecking))
	assert.Error(t, r.Transition("ledger", StatusBinding))
	assert.Error(t, r.Transition("ledger", StatusSucceeded))

	assert.Error(t, r.Transition("never-registered", StatusDeploying))
}

func TestFinalizeExactlyOnce(t *testing.T) {
	r, _ := newTestRecorder()
	r.Begin("auth", 1)
	r.Begin("ledger", 1)
	r.Begin("billing-api", 2)

	require.NoError(t, r.Transition("auth", StatusDeploying))
	require.NoError(t, r.Transition("auth", StatusAwaitingReady))
	require.NoError(t, r.Transition("auth", StatusHealthChecking))
	require.NoError(t, r.Transition("auth", StatusBinding))
	require.NoError(t, r.Transition("auth", StatusSucceeded))

	require.NoError(t, r.Transition("ledger", StatusDeploying))
	require.NoError(t, r.Fail("ledger", errors.New("boom")))
	require.NoError(t, r.Transition("ledger", StatusRolledBack))

	// billing-api never left Pending: the manifest still covers it.
	m, err := r.Finalize("staging")
	require.NoError(t, err)
	assert.Equal(t, "staging", m.Environment)
	assert.Equal(t, r.RunID(), m.RunID)
	require.Len(t, m.Services, 3)
	assert.Equal(t, "auth", m.Services[0].Service)
	assert.Equal(t, "ledger", m.Services[1].Service)
	assert.Equal(t, StatusPending, m.Services[2].Status)
	assert.Equal(t, 1, m.FailedCount())
	assert.Equal(t, 1, r.FailedCount())

	_, err = r.Finalize("staging")
	assert.Error(t, err, "second finalize must fail")
}

func TestWarningsAndFieldsAccumulate(t *testing.T) {
	r, _ := newTestRecorder()
	r.Begin("billing-api", 2)
	r.SetEndpoint("billing-api", "https://billing.example.com")
	r.SetRevision("billing-api", "7")
	r.SetHealth("billing-api", HealthHealthy)
	r.AddWarning("billing-api", "binding group:oncall failed")
	r.AddWarning("billing-api", "binding user:alice failed")

	outcome, _ := r.Get("billing-api")
	assert.Equal(t, "https://billing.example.com", outcome.EndpointURL)
	assert.Equal(t, "7", outcome.Revision)
	assert.Equal(t, HealthHealthy, outcome.Health)
	assert.Len(t, outcome.Warnings, 2)

	// Snapshot copies do not alias recorder state.
	snap := r.Snapshot()
	snap[0].Warnings[0] = "mutated"
	outcome, _ = r.Get("billing-api")
	assert.Equal(t, "binding group:oncall failed", outcome.Warnings[0])
}

func TestRecorderConcurrentWriters(t *testing.T) {
	r := NewRecorder()
	services := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, svc := range services {
		r.Begin(svc, 1)
	}

	var wg sync.WaitGroup
	for _, svc := range services {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_ = r.Transition(name, StatusDeploying)
			r.SetEndpoint(name, "http://"+name)
			_ = r.Transition(name, StatusAwaitingReady)
			_ = r.Transition(name, StatusHealthChecking)
			_ = r.Transition(name, StatusBinding)
			_ = r.Transition(name, StatusSucceeded)
		}(svc)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = r.Snapshot()
		}
	}()
	wg.Wait()

	for _, svc := range services {
		outcome, ok := r.Get(svc)
		require.True(t, ok)
		assert.Equal(t, StatusSucceeded, outcome.Status)
	}
	assert.Zero(t, r.FailedCount())
}
