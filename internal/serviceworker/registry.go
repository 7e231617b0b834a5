package serviceworker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/storage"
)

// Registration is an active worker registration
type Registration struct {
	ID           string    `json:"id"`
	ScriptURL    string    `json:"script_url"`
	Scope        string    `json:"scope"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Registry registers and looks up the worker
type Registry interface {
	// Lookup returns the current registration or nil
	Lookup(ctx context.Context) (*Registration, error)
	Register(ctx context.Context, scriptURL, scope string) (*Registration, error)
	Unregister(ctx context.Context) error
}

// StoreRegistry keeps the registration record in the key/value store so it
// outlives the process, like a browser keeps its worker registrations.
type StoreRegistry struct {
	kv  storage.Store
	now func() time.Time
}

// NewStoreRegistry creates a registry over kv
func NewStoreRegistry(kv storage.Store) *StoreRegistry {
	return &StoreRegistry{kv: kv, now: time.Now}
}

// Lookup returns the stored registration. A corrupt record reads as none.
func (r *StoreRegistry) Lookup(_ context.Context) (*Registration, error) {
	raw, ok := r.kv.Get(storage.KeyServiceWorker)
	if !ok || raw == "" {
		return nil, nil
	}

	var reg Registration
	if err := json.Unmarshal([]byte(raw), &reg); err != nil || reg.ScriptURL == "" {
		GetLogger().Warn("discarding unreadable worker registration record")
		return nil, nil
	}
	return &reg, nil
}

// Register records a new registration for scriptURL, replacing any other
func (r *StoreRegistry) Register(_ context.Context, scriptURL, scope string) (*Registration, error) {
	if scriptURL == "" {
		return nil, errors.Newf("worker script URL is empty").
			Component("serviceworker").
			Category(errors.CategoryValidation).
			Build()
	}

	reg := &Registration{
		ID:           uuid.NewString(),
		ScriptURL:    scriptURL,
		Scope:        scope,
		RegisteredAt: r.now().UTC(),
	}
	data, err := json.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registration: %w", err)
	}

	if err := r.kv.Set(storage.KeyServiceWorker, string(data)); err != nil {
		return nil, errors.New(err).
			Component("serviceworker").
			Category(errors.CategoryServiceWorker).
			Context("operation", "register").
			Context("script_url", scriptURL).
			Build()
	}
	return reg, nil
}

// Unregister removes the registration
func (r *StoreRegistry) Unregister(_ context.Context) error {
	if err := r.kv.Delete(storage.KeyServiceWorker); err != nil {
		return errors.New(err).
			Component("serviceworker").
			Category(errors.CategoryServiceWorker).
			Context("operation", "unregister").
			Build()
	}
	return nil
}
