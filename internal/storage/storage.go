// Package storage provides the persistent key/value state shared by the agent's
// components: session flags, the selected restaurant, notification permission
// and the service-worker registration record.
//
// Every backend reports writes to registered watchers, which is how other
// components learn about session changes made elsewhere.
package storage

import (
	"sync"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
)

// Well-known keys. The spellings are shared with the dashboard and must not change.
const (
	KeyIsLoggedIn             = "isLogedIn"
	KeyRestaurantID           = "restaurant_id"
	KeyAccessToken            = "token"
	KeyRefreshToken           = "refresh_token"
	KeyNotificationPermission = "notification_permission"
	KeyServiceWorker          = "sw_registration"
	KeyPushDeviceID           = "push_device_id"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New(errors.NewStd("storage is closed")).
	Component("storage").
	Category(errors.CategoryState).
	Build()

// Change describes a single key mutation. Deleted is set when the key was
// removed; Value then holds "".
type Change struct {
	Key      string
	OldValue string
	Value    string
	Deleted  bool
}

// Store is a string key/value store with change notification
type Store interface {
	// Get returns the value for key and whether it exists
	Get(key string) (string, bool)
	// Set stores value under key and notifies watchers when the value changed
	Set(key, value string) error
	// Delete removes key and notifies watchers when it existed
	Delete(key string) error
	// Watch registers fn for every change; the returned func unregisters it
	Watch(fn func(Change)) (cancel func())
	Close() error
}

// watchers is the notification fan-out embedded by every backend.
// Callbacks run synchronously on the writer's goroutine, after the write is durable.
type watchers struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]func(Change)
}

func (w *watchers) add(fn func(Change)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fns == nil {
		w.fns = make(map[int]func(Change))
	}
	id := w.nextID
	w.nextID++
	w.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.fns, id)
			w.mu.Unlock()
		})
	}
}

func (w *watchers) notify(c Change) {
	w.mu.RLock()
	fns := make([]func(Change), 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
