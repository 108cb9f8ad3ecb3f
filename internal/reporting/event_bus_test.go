package reporting

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rolloutctl/internal/manifest"
)

func TestNewEventBus(t *testing.T) {
	bus := NewEventBus()
	assert.NotNil(t, bus)

	metrics := bus.GetMetrics()
	assert.Equal(t, 0, metrics.TotalSubscriptions)
	assert.Equal(t, 0, metrics.ActiveSubscriptions)
	assert.Equal(t, int64(0), metrics.EventsPublished)
	assert.Equal(t, int64(0), metrics.EventsDelivered)
	assert.Equal(t, int64(0), metrics.EventsDropped)
}

func TestEventBus_Subscribe(t *testing.T) {
	bus := NewEventBus()

	subscription := bus.Subscribe(FilterByType(EventTypeUnitStatus), func(Event) {})

	assert.NotNil(t, subscription)
	assert.NotEmpty(t, subscription.ID)
	assert.False(t, subscription.IsClosed())

	metrics := bus.GetMetrics()
	assert.Equal(t, 1, metrics.TotalSubscriptions)
	assert.Equal(t, 1, metrics.ActiveSubscriptions)
}

func TestEventBus_Publish_Handler(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	var receivedEvents []Event

	handler := func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		receivedEvents = append(receivedEvents, event)
	}

	filter := FilterByType(EventTypeUnitStatus)
	bus.Subscribe(filter, handler)

	// Matching event is delivered, phase event is filtered out.
	bus.Publish(NewUnitEvent("billing-api", 1, manifest.StatusDeploying, ""))
	bus.Publish(NewPhaseEvent(EventTypePhaseStarted, 1, 3, 0))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(receivedEvents) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	unitEvent, ok := receivedEvents[0].(UnitEvent)
	require.True(t, ok)
	assert.Equal(t, "billing-api", unitEvent.Service)
	assert.Equal(t, manifest.StatusDeploying, unitEvent.Status)
}

func TestEventBus_Publish_Channel(t *testing.T) {
	bus := NewEventBus()

	subscription := bus.SubscribeChannel(nil, 10)
	require.NotNil(t, subscription.Channel)

	bus.Publish(NewWarningEvent("billing-api", "binding skipped"))

	select {
	case event := <-subscription.Channel:
		warning, ok := event.(WarningEvent)
		require.True(t, ok)
		assert.Equal(t, "billing-api", warning.Service)
	case <-time.After(time.Second):
		t.Fatal("expected event on subscription channel")
	}
}

func TestEventBus_Publish_FullChannelDropsWithoutBlocking(t *testing.T) {
	bus := NewEventBus()

	// Capacity one, nobody draining. The second and third publish must
	// return immediately and count as drops.
	subscription := bus.SubscribeChannel(nil, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			bus.Publish(NewUnitEvent("ledger", 1, manifest.StatusDeploying, ""))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber channel")
	}

	metrics := bus.GetMetrics()
	assert.Equal(t, int64(3), metrics.EventsPublished)
	assert.Equal(t, int64(1), metrics.EventsDelivered)
	assert.Equal(t, int64(2), metrics.EventsDropped)
	assert.Len(t, subscription.Channel, 1)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()

	subscription := bus.SubscribeChannel(nil, 5)
	bus.Unsubscribe(subscription)

	assert.True(t, subscription.IsClosed())
	assert.Equal(t, 0, bus.GetMetrics().ActiveSubscriptions)

	// Channel is closed, receive yields the zero value immediately.
	_, open := <-subscription.Channel
	assert.False(t, open)

	bus.Publish(NewUnitEvent("ledger", 1, manifest.StatusSucceeded, ""))
	assert.Equal(t, int64(0), bus.GetMetrics().EventsDelivered)
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus()

	subscription := bus.SubscribeChannel(nil, 5)
	bus.Close()

	assert.True(t, subscription.IsClosed())
	assert.Nil(t, bus.Subscribe(nil, func(Event) {}))
	assert.Nil(t, bus.SubscribeChannel(nil, 1))

	// Publishing after close is a no-op.
	bus.Publish(NewUnitEvent("ledger", 1, manifest.StatusSucceeded, ""))
	assert.Equal(t, int64(0), bus.GetMetrics().EventsPublished)
}

func TestEventBus_MetricsByType(t *testing.T) {
	bus := NewEventBus()

	bus.Publish(NewUnitEvent("a", 1, manifest.StatusDeploying, ""))
	bus.Publish(NewUnitEvent("b", 1, manifest.StatusDeploying, ""))
	bus.Publish(NewPhaseEvent(EventTypePhaseCompleted, 1, 2, 0))

	metrics := bus.GetMetrics()
	assert.Equal(t, int64(3), metrics.EventsPublished)
	assert.Equal(t, int64(2), metrics.EventsByType[EventTypeUnitStatus])
	assert.Equal(t, int64(1), metrics.EventsByType[EventTypePhaseCompleted])
	assert.False(t, metrics.LastEventTime.IsZero())
}

func TestFilterBySeverity(t *testing.T) {
	filter := FilterBySeverity(SeverityWarn)

	assert.True(t, filter(NewUnitEvent("a", 1, manifest.StatusFailed, "boom")))
	assert.True(t, filter(NewWarningEvent("a", "partial binding")))
	assert.False(t, filter(NewUnitEvent("a", 1, manifest.StatusSucceeded, "")))
	assert.False(t, filter(NewUnitEvent("a", 1, manifest.StatusDeploying, "")))
}
