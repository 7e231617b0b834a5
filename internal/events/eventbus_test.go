package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockConsumer implements EventConsumer for testing
type mockConsumer struct {
	name         string
	topics       []Topic
	errOnProcess bool
	processDelay time.Duration
	block        chan struct{}

	processed atomic.Int32
	mu        sync.Mutex
	events    []Event
}

func (m *mockConsumer) Name() string    { return m.name }
func (m *mockConsumer) Topics() []Topic { return m.topics }

func (m *mockConsumer) ProcessEvent(event Event) error {
	if m.block != nil {
		<-m.block
	}
	if m.processDelay > 0 {
		time.Sleep(m.processDelay)
	}

	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	m.processed.Add(1)

	if m.errOnProcess {
		return fmt.Errorf("mock error")
	}
	return nil
}

func (m *mockConsumer) received() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func newTestBus(t *testing.T, cfg *Config) *EventBus {
	t.Helper()
	eb := New(cfg, logger.NewSlogLogger(nil, logger.LogLevelError, nil))
	t.Cleanup(func() { _ = eb.Shutdown(time.Second) })
	return eb
}

func TestEventBusDeliversByTopic(t *testing.T) {
	eb := newTestBus(t, nil)

	auth := &mockConsumer{name: "auth", topics: []Topic{TopicAuthStateChange}}
	all := &mockConsumer{name: "all"}
	require.NoError(t, eb.RegisterConsumer(auth))
	require.NoError(t, eb.RegisterConsumer(all))

	require.NoError(t, eb.Publish(t.Context(), AuthStateChanged{IsLoggedIn: true, RestaurantID: "5"}))
	require.True(t, eb.TryPublish(RestaurantChanged{Previous: "5", Current: "7", IsLoggedIn: true}))
	require.True(t, eb.TryPublish(NotificationReceived{Title: "New reservation"}))

	require.Eventually(t, func() bool { return all.processed.Load() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), auth.processed.Load())

	got := all.received()
	assert.Equal(t, TopicAuthStateChange, got[0].Topic())
	assert.Equal(t, TopicRestaurantChange, got[1].Topic())
	assert.Equal(t, TopicNewNotification, got[2].Topic())

	stats := eb.GetStats()
	assert.Equal(t, uint64(3), stats.EventsReceived)
	assert.Equal(t, uint64(4), stats.EventsProcessed)
}

func TestEventBusRejectsDuplicateConsumer(t *testing.T) {
	eb := newTestBus(t, nil)

	require.NoError(t, eb.RegisterConsumer(&mockConsumer{name: "inbox"}))
	assert.Error(t, eb.RegisterConsumer(&mockConsumer{name: "inbox"}))

	eb.UnregisterConsumer("inbox")
	assert.NoError(t, eb.RegisterConsumer(&mockConsumer{name: "inbox"}))
}

func TestEventBusOverflowDropsWithoutBlocking(t *testing.T) {
	eb := newTestBus(t, &Config{BufferSize: 1, Workers: 1})

	block := make(chan struct{})
	slow := &mockConsumer{name: "slow", block: block}
	require.NoError(t, eb.RegisterConsumer(slow))

	// first event occupies the worker, second fills the buffer
	require.True(t, eb.TryPublish(NotificationReceived{Title: "1"}))
	require.Eventually(t, func() bool { return len(eb.eventChan) == 0 }, time.Second, time.Millisecond)
	require.True(t, eb.TryPublish(NotificationReceived{Title: "2"}))

	assert.False(t, eb.TryPublish(NotificationReceived{Title: "3"}))
	assert.Equal(t, uint64(1), eb.GetStats().EventsDropped)

	close(block)
	require.Eventually(t, func() bool { return slow.processed.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestConsumerPanicAndErrorAreIsolated(t *testing.T) {
	eb := newTestBus(t, nil)

	panicky := NewConsumer("panicky", func(Event) error { panic("boom") })
	failing := &mockConsumer{name: "failing", errOnProcess: true}
	healthy := &mockConsumer{name: "healthy"}
	require.NoError(t, eb.RegisterConsumer(panicky))
	require.NoError(t, eb.RegisterConsumer(failing))
	require.NoError(t, eb.RegisterConsumer(healthy))

	require.True(t, eb.TryPublish(AuthStateChanged{}))

	require.Eventually(t, func() bool { return healthy.processed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), eb.GetStats().ConsumerErrors)
}

func TestEventBusShutdown(t *testing.T) {
	eb := New(nil, logger.NewSlogLogger(nil, logger.LogLevelError, nil))

	require.NoError(t, eb.Shutdown(time.Second))
	require.NoError(t, eb.Shutdown(time.Second), "second shutdown is a no-op")

	assert.False(t, eb.TryPublish(AuthStateChanged{}))
	assert.Error(t, eb.Publish(t.Context(), AuthStateChanged{}))
}
