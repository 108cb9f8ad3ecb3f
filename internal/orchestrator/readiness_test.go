package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rolloutctl/internal/cloud"
	"rolloutctl/internal/config"
)

// fastWaiter shrinks the poll interval so tests finish in milliseconds.
func fastWaiter(plane cloud.ControlPlane, maxAttempts int) *ReadinessWaiter {
	w := NewReadinessWaiter(plane, config.RetrySettings{
		MaxAttempts:     maxAttempts,
		IntervalSeconds: 1,
		DeadlineSeconds: 30,
	})
	w.backoff.Duration = time.Millisecond
	return w
}

func TestReadinessWaiter_ReadyAfterRetries(t *testing.T) {
	plane := newFakePlane()
	var attempts atomic.Int32
	plane.describeFunc = func(ctx context.Context, id string) (cloud.ResourceStatus, error) {
		if attempts.Add(1) < 3 {
			return cloud.ResourceStatus{Ready: false, Reason: "1/2 replicas ready"}, nil
		}
		return cloud.ResourceStatus{Ready: true, Revision: "5", ReadyInstances: 2, TotalInstances: 2}, nil
	}

	w := fastWaiter(plane, 5)
	status, err := w.Wait(context.Background(), "staging-apps/auth", "auth")

	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, "5", status.Revision)
	assert.Equal(t, 3, plane.callCount("Describe"))
}

func TestReadinessWaiter_ExhaustionReturnsTimeout(t *testing.T) {
	plane := newFakePlane()
	plane.describeFunc = func(ctx context.Context, id string) (cloud.ResourceStatus, error) {
		return cloud.ResourceStatus{Ready: false, Reason: "0/2 replicas ready"}, nil
	}

	w := fastWaiter(plane, 3)
	_, err := w.Wait(context.Background(), "staging-apps/auth", "auth")

	var timeout *cloud.ReadinessTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "auth", timeout.Service)
	assert.Equal(t, 3, timeout.Attempts)
	assert.Equal(t, "0/2 replicas ready", timeout.LastReason)
	assert.Contains(t, err.Error(), "not ready after 3 attempts")
}

func TestReadinessWaiter_DeadlineBoundsTotalWait(t *testing.T) {
	plane := newFakePlane()
	plane.describeFunc = func(ctx context.Context, id string) (cloud.ResourceStatus, error) {
		return cloud.ResourceStatus{Ready: false, Reason: "still rolling"}, nil
	}

	w := fastWaiter(plane, 10000)
	w.backoff.Duration = 5 * time.Millisecond
	w.deadline = 25 * time.Millisecond

	start := time.Now()
	_, err := w.Wait(context.Background(), "staging-apps/auth", "auth")

	var timeout *cloud.ReadinessTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Less(t, timeout.Attempts, 10000)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestReadinessWaiter_CancelPassesThrough(t *testing.T) {
	plane := newFakePlane()
	plane.describeFunc = func(ctx context.Context, id string) (cloud.ResourceStatus, error) {
		return cloud.ResourceStatus{Ready: false, Reason: "still rolling"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := fastWaiter(plane, 5)
	_, err := w.Wait(ctx, "staging-apps/auth", "auth")

	// Cancellation is not a readiness timeout; the scheduler tells them apart.
	require.ErrorIs(t, err, context.Canceled)
	var timeout *cloud.ReadinessTimeout
	assert.False(t, errors.As(err, &timeout))
}

func TestReadinessWaiter_VanishedUnitAborts(t *testing.T) {
	plane := newFakePlane()
	plane.describeFunc = func(ctx context.Context, id string) (cloud.ResourceStatus, error) {
		return cloud.ResourceStatus{}, &cloud.NotFoundError{Kind: "unit", ID: id}
	}

	w := fastWaiter(plane, 5)
	_, err := w.Wait(context.Background(), "staging-apps/auth", "auth")

	var notFound *cloud.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 1, plane.callCount("Describe"))
}

func TestReadinessWaiter_TransientDescribeErrorsAreRetried(t *testing.T) {
	plane := newFakePlane()
	var attempts atomic.Int32
	plane.describeFunc = func(ctx context.Context, id string) (cloud.ResourceStatus, error) {
		if attempts.Add(1) == 1 {
			return cloud.ResourceStatus{}, errors.New("apiserver hiccup")
		}
		return cloud.ResourceStatus{Ready: true, Revision: "2"}, nil
	}

	w := fastWaiter(plane, 5)
	status, err := w.Wait(context.Background(), "staging-apps/auth", "auth")

	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, 2, plane.callCount("Describe"))
}
