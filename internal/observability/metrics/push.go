package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery label values
const (
	DeliveryForeground = "foreground"
	DeliveryBackground = "background"
)

// PushMetrics contains the push pipeline metrics. A nil *PushMetrics is
// valid and records nothing.
type PushMetrics struct {
	TokenRegistrations     *prometheus.CounterVec // by result: registered, duplicate, skipped, deferred, failed
	MessagesReceived       *prometheus.CounterVec // by delivery: foreground, background
	WorkerLifecycleActions *prometheus.CounterVec // by action: register, unregister, none
	PermissionRequests     *prometheus.CounterVec // by result: granted, denied
	InboxRefreshes         *prometheus.CounterVec // by status: success, error
	registry               *prometheus.Registry
}

// NewPushMetrics creates and registers the push metrics
func NewPushMetrics(registry *prometheus.Registry) (*PushMetrics, error) {
	m := &PushMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register push metrics: %w", err)
	}
	return m, nil
}

func (m *PushMetrics) initMetrics() {
	m.TokenRegistrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabla_push_token_registrations_total",
			Help: "Device token registration attempts by result",
		},
		[]string{"result"},
	)

	m.MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabla_push_messages_received_total",
			Help: "Push messages received by delivery mode",
		},
		[]string{"delivery"},
	)

	m.WorkerLifecycleActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabla_push_worker_lifecycle_actions_total",
			Help: "Service worker lifecycle decisions by action",
		},
		[]string{"action"},
	)

	m.PermissionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabla_push_permission_requests_total",
			Help: "Notification permission requests by result",
		},
		[]string{"result"},
	)

	m.InboxRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabla_push_inbox_refreshes_total",
			Help: "Notification inbox refreshes by status",
		},
		[]string{"status"},
	)
}

// Describe implements the prometheus.Collector interface.
func (m *PushMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.TokenRegistrations.Describe(ch)
	m.MessagesReceived.Describe(ch)
	m.WorkerLifecycleActions.Describe(ch)
	m.PermissionRequests.Describe(ch)
	m.InboxRefreshes.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PushMetrics) Collect(ch chan<- prometheus.Metric) {
	m.TokenRegistrations.Collect(ch)
	m.MessagesReceived.Collect(ch)
	m.WorkerLifecycleActions.Collect(ch)
	m.PermissionRequests.Collect(ch)
	m.InboxRefreshes.Collect(ch)
}

// RecordRegistration records a token registration outcome
func (m *PushMetrics) RecordRegistration(result string) {
	if m == nil {
		return
	}
	m.TokenRegistrations.WithLabelValues(result).Inc()
}

// RecordMessage records a received push message
func (m *PushMetrics) RecordMessage(delivery string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(delivery).Inc()
}

// RecordWorkerAction records a service worker lifecycle decision
func (m *PushMetrics) RecordWorkerAction(action string) {
	if m == nil {
		return
	}
	m.WorkerLifecycleActions.WithLabelValues(action).Inc()
}

// RecordPermission records a permission request outcome
func (m *PushMetrics) RecordPermission(granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.PermissionRequests.WithLabelValues(result).Inc()
}

// RecordInboxRefresh records an inbox refresh
func (m *PushMetrics) RecordInboxRefresh(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.InboxRefreshes.WithLabelValues(status).Inc()
}
