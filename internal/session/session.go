// Package session exposes the operator's login state and active restaurant as
// an observable store. The state lives in the key/value storage so that writes
// made by the dashboard shell, the control API and the CLI are all observed
// the same way; Store recomputes a Snapshot on every relevant key change and
// tells subscribers and the event bus about real transitions only.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/events"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/storage"
)

// Snapshot is the auth state read by the push flow
type Snapshot struct {
	IsLoggedIn   bool
	RestaurantID string
}

// CanRegister reports whether a device token may be registered now
func (s Snapshot) CanRegister() bool {
	return s.IsLoggedIn && s.RestaurantID != ""
}

// Publisher is the subset of the event bus the store needs
type Publisher interface {
	TryPublish(event events.Event) bool
}

// Store is the observable session state
type Store struct {
	kv  storage.Store
	bus Publisher
	log logger.Logger
	now func() time.Time

	mu      sync.Mutex
	current Snapshot
	nextID  int
	subs    map[int]func(prev, cur Snapshot)

	unwatch func()
}

// New builds a Store over kv. bus may be nil when no events are wanted.
func New(kv storage.Store, bus Publisher, log logger.Logger) *Store {
	if log == nil {
		log = GetLogger()
	}

	s := &Store{
		kv:   kv,
		bus:  bus,
		log:  log,
		now:  time.Now,
		subs: make(map[int]func(prev, cur Snapshot)),
	}
	s.current = s.read()
	s.unwatch = kv.Watch(s.onChange)
	return s
}

// Snapshot returns the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers fn for state transitions. fn runs on the goroutine that
// wrote to storage and must not block.
func (s *Store) Subscribe(fn func(prev, cur Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Login stores the credentials and marks the session as logged in.
// The restaurant is written first so the auth transition carries it.
func (s *Store) Login(_ context.Context, accessToken, refreshToken, restaurantID string) error {
	if accessToken == "" {
		return errors.Newf("access token is required").
			Component("session").
			Category(errors.CategoryValidation).
			Context("operation", "login").
			Build()
	}

	writes := []struct{ key, value string }{
		{storage.KeyAccessToken, accessToken},
		{storage.KeyRefreshToken, refreshToken},
		{storage.KeyRestaurantID, restaurantID},
		{storage.KeyIsLoggedIn, "true"},
	}
	for _, w := range writes {
		if w.value == "" {
			continue
		}
		if err := s.kv.Set(w.key, w.value); err != nil {
			return errors.New(err).
				Component("session").
				Category(errors.CategoryStorage).
				Context("operation", "login").
				Context("key", w.key).
				Build()
		}
	}
	return nil
}

// Logout clears the logged-in flag and credentials. The restaurant selection is kept.
func (s *Store) Logout(_ context.Context) error {
	for _, key := range []string{storage.KeyIsLoggedIn, storage.KeyAccessToken, storage.KeyRefreshToken} {
		if err := s.kv.Delete(key); err != nil {
			return errors.New(err).
				Component("session").
				Category(errors.CategoryStorage).
				Context("operation", "logout").
				Context("key", key).
				Build()
		}
	}
	return nil
}

// SwitchRestaurant selects a different restaurant
func (s *Store) SwitchRestaurant(_ context.Context, restaurantID string) error {
	if restaurantID == "" {
		return errors.Newf("restaurant id is required").
			Component("session").
			Category(errors.CategoryValidation).
			Context("operation", "switch_restaurant").
			Build()
	}
	if err := s.kv.Set(storage.KeyRestaurantID, restaurantID); err != nil {
		return errors.New(err).
			Component("session").
			Category(errors.CategoryStorage).
			Context("operation", "switch_restaurant").
			Build()
	}
	return nil
}

// AccessToken returns the stored bearer token
func (s *Store) AccessToken() string {
	v, _ := s.kv.Get(storage.KeyAccessToken)
	return v
}

// RequestHeaders supplies the credentials and restaurant for backend calls
func (s *Store) RequestHeaders() http.Header {
	h := http.Header{}
	if token := s.AccessToken(); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	if id := s.Snapshot().RestaurantID; id != "" {
		h.Set("X-Restaurant-ID", id)
	}
	return h
}

// Close stops watching storage. Subscribers are dropped.
func (s *Store) Close() {
	s.unwatch()

	s.mu.Lock()
	clear(s.subs)
	s.mu.Unlock()
}

func (s *Store) read() Snapshot {
	flag, _ := s.kv.Get(storage.KeyIsLoggedIn)
	restaurant, _ := s.kv.Get(storage.KeyRestaurantID)
	return Snapshot{
		IsLoggedIn:   flag == "true",
		RestaurantID: restaurant,
	}
}

func (s *Store) onChange(c storage.Change) {
	if c.Key != storage.KeyIsLoggedIn && c.Key != storage.KeyRestaurantID {
		return
	}

	s.mu.Lock()
	prev := s.current
	cur := s.read()
	if prev == cur {
		s.mu.Unlock()
		return
	}
	s.current = cur
	subs := make([]func(prev, cur Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.log.Debug("session changed",
		logger.Bool("logged_in", cur.IsLoggedIn),
		logger.String("restaurant_id", cur.RestaurantID))

	for _, fn := range subs {
		fn(prev, cur)
	}
	s.publish(prev, cur)
}

func (s *Store) publish(prev, cur Snapshot) {
	if s.bus == nil {
		return
	}

	at := s.now()
	if prev.IsLoggedIn != cur.IsLoggedIn {
		if !s.bus.TryPublish(events.AuthStateChanged{IsLoggedIn: cur.IsLoggedIn, RestaurantID: cur.RestaurantID, At: at}) {
			s.log.Warn("auth state event dropped")
		}
	}
	if prev.RestaurantID != cur.RestaurantID {
		if !s.bus.TryPublish(events.RestaurantChanged{Previous: prev.RestaurantID, Current: cur.RestaurantID, IsLoggedIn: cur.IsLoggedIn, At: at}) {
			s.log.Warn("restaurant change event dropped")
		}
	}
}

// GetLogger returns the session module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("session")
}
