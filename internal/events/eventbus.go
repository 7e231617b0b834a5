package events

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

// Config holds event bus configuration
type Config struct {
	BufferSize int
	// Workers is the number of delivery goroutines. With more than one worker,
	// events may reach consumers out of publish order.
	Workers int
}

// DefaultConfig returns the default event bus configuration
func DefaultConfig() *Config {
	return &Config{
		BufferSize: 256,
		Workers:    1,
	}
}

// EventBus provides asynchronous event delivery with a non-blocking publish path
type EventBus struct {
	eventChan chan Event

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	mu        sync.RWMutex
	consumers []EventConsumer

	stats struct {
		received  atomic.Uint64
		processed atomic.Uint64
		dropped   atomic.Uint64
		errors    atomic.Uint64
	}

	logger logger.Logger
}

// New creates an event bus and starts its workers
func New(config *Config, log logger.Logger) *EventBus {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if log == nil {
		log = logger.Global().Module("events")
	}

	ctx, cancel := context.WithCancel(context.Background())
	eb := &EventBus{
		eventChan: make(chan Event, config.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    log,
	}

	eb.running.Store(true)
	for i := range config.Workers {
		eb.wg.Add(1)
		go eb.worker(i)
	}

	eb.logger.Debug("event bus started",
		logger.Int("buffer_size", config.BufferSize),
		logger.Int("workers", config.Workers))

	return eb
}

// RegisterConsumer adds a new event consumer. Names must be unique.
func (eb *EventBus) RegisterConsumer(consumer EventConsumer) error {
	if eb == nil {
		return fmt.Errorf("event bus not initialized")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, existing := range eb.consumers {
		if existing.Name() == consumer.Name() {
			return fmt.Errorf("consumer %s already registered", consumer.Name())
		}
	}

	eb.consumers = append(eb.consumers, consumer)
	eb.logger.Debug("registered event consumer", logger.String("consumer", consumer.Name()))

	return nil
}

// UnregisterConsumer removes the consumer with the given name
func (eb *EventBus) UnregisterConsumer(name string) {
	if eb == nil {
		return
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.consumers = slices.DeleteFunc(eb.consumers, func(c EventConsumer) bool {
		return c.Name() == name
	})
}

// Publish queues an event, blocking until there is buffer room or ctx is done
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	if eb == nil || !eb.running.Load() {
		return fmt.Errorf("event bus not running")
	}

	select {
	case eb.eventChan <- event:
		eb.stats.received.Add(1)
		return nil
	case <-ctx.Done():
		eb.stats.dropped.Add(1)
		return ctx.Err()
	case <-eb.ctx.Done():
		return fmt.Errorf("event bus shutting down")
	}
}

// TryPublish attempts to publish an event without blocking.
// Returns true if the event was accepted, false if dropped.
func (eb *EventBus) TryPublish(event Event) bool {
	if eb == nil || !eb.running.Load() {
		return false
	}

	select {
	case eb.eventChan <- event:
		eb.stats.received.Add(1)
		return true
	default:
		eb.stats.dropped.Add(1)
		eb.logger.Debug("event dropped due to full buffer", logger.String("topic", string(event.Topic())))
		return false
	}
}

func (eb *EventBus) worker(id int) {
	defer eb.wg.Done()

	log := eb.logger.With(logger.Int("worker_id", id))

	for {
		select {
		case <-eb.ctx.Done():
			return
		case event := <-eb.eventChan:
			eb.processEvent(event, log)
		}
	}
}

// processEvent delivers the event to every consumer subscribed to its topic
func (eb *EventBus) processEvent(event Event, log logger.Logger) {
	eb.mu.RLock()
	consumers := slices.Clone(eb.consumers)
	eb.mu.RUnlock()

	topic := event.Topic()
	for _, consumer := range consumers {
		if topics := consumer.Topics(); len(topics) > 0 && !slices.Contains(topics, topic) {
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.stats.errors.Add(1)
					log.Error("consumer panicked",
						logger.String("consumer", consumer.Name()),
						logger.String("topic", string(topic)),
						logger.Any("panic", r))
				}
			}()

			if err := consumer.ProcessEvent(event); err != nil {
				eb.stats.errors.Add(1)
				log.Warn("consumer error",
					logger.String("consumer", consumer.Name()),
					logger.String("topic", string(topic)),
					logger.Error(err))
				return
			}
			eb.stats.processed.Add(1)
		}()
	}
}

// Shutdown stops accepting events and waits for the workers to exit
func (eb *EventBus) Shutdown(timeout time.Duration) error {
	if eb == nil || !eb.running.Swap(false) {
		return nil
	}

	eb.cancel()

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eb.logger.Debug("event bus shutdown complete")
		return nil
	case <-time.After(timeout):
		eb.logger.Warn("event bus shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// GetStats returns current event bus statistics
func (eb *EventBus) GetStats() EventBusStats {
	if eb == nil {
		return EventBusStats{}
	}

	return EventBusStats{
		EventsReceived:  eb.stats.received.Load(),
		EventsProcessed: eb.stats.processed.Load(),
		EventsDropped:   eb.stats.dropped.Load(),
		ConsumerErrors:  eb.stats.errors.Load(),
	}
}
