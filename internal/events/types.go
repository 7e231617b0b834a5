// Package events provides the in-process event bus that carries the
// application events between the session store, the push backends, the
// notification provider and the inbox.
package events

import (
	"time"
)

// Topic names an application event. The string values are shared with the
// dashboard shell and must not change.
type Topic string

const (
	// TopicAuthStateChange fires when the logged-in flag changes
	TopicAuthStateChange Topic = "tabla:auth-state-change"
	// TopicRestaurantChange fires when the active restaurant changes
	TopicRestaurantChange Topic = "tabla:restaurant-change"
	// TopicNewNotification fires for every push message shown in the foreground
	TopicNewNotification Topic = "newNotificationReceived"
)

// Event is anything published on the bus
type Event interface {
	Topic() Topic
	OccurredAt() time.Time
}

// AuthStateChanged is published on login and logout
type AuthStateChanged struct {
	IsLoggedIn   bool
	RestaurantID string
	At           time.Time
}

func (e AuthStateChanged) Topic() Topic          { return TopicAuthStateChange }
func (e AuthStateChanged) OccurredAt() time.Time { return e.At }

// RestaurantChanged is published when the active restaurant is switched
type RestaurantChanged struct {
	Previous   string
	Current    string
	IsLoggedIn bool
	At         time.Time
}

func (e RestaurantChanged) Topic() Topic          { return TopicRestaurantChange }
func (e RestaurantChanged) OccurredAt() time.Time { return e.At }

// NotificationReceived is published after a push message was displayed
type NotificationReceived struct {
	Title string
	Body  string
	Link  string
	Data  map[string]any
	At    time.Time
}

func (e NotificationReceived) Topic() Topic          { return TopicNewNotification }
func (e NotificationReceived) OccurredAt() time.Time { return e.At }

// EventConsumer processes events for the topics it declares
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// Topics returns the topics this consumer wants; empty means all
	Topics() []Topic

	// ProcessEvent processes a single event
	ProcessEvent(event Event) error
}

// EventBusStats contains runtime statistics for monitoring
type EventBusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}

// consumerFunc adapts a function to EventConsumer
type consumerFunc struct {
	name   string
	topics []Topic
	fn     func(Event) error
}

// NewConsumer wraps fn as an EventConsumer for the given topics
func NewConsumer(name string, fn func(Event) error, topics ...Topic) EventConsumer {
	return &consumerFunc{name: name, topics: topics, fn: fn}
}

func (c *consumerFunc) Name() string               { return c.name }
func (c *consumerFunc) Topics() []Topic            { return c.topics }
func (c *consumerFunc) ProcessEvent(e Event) error { return c.fn(e) }
