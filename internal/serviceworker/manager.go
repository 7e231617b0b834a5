package serviceworker

import (
	"context"
	"sync"

	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
	"github.com/tabladeV/manager.tabla-sub002/internal/session"
)

// SessionReader exposes the current auth snapshot
type SessionReader interface {
	Snapshot() session.Snapshot
}

// PermissionReader exposes the notification permission state
type PermissionReader interface {
	State() push.Permission
}

// Manager runs lifecycle passes. It holds no decision state: every Sync
// reads its inputs fresh.
type Manager struct {
	session     SessionReader
	permissions PermissionReader
	registry    Registry
	scriptURL   string
	scope       string
	log         logger.Logger

	mu sync.Mutex // one pass at a time

	obsMu    sync.RWMutex
	observer func(Action)
}

// NewManager creates a lifecycle manager for the worker at scriptURL
func NewManager(sess SessionReader, perms PermissionReader, registry Registry, scriptURL string, log logger.Logger) *Manager {
	if scriptURL == "" {
		scriptURL = DefaultScriptURL
	}
	if log == nil {
		log = GetLogger()
	}
	return &Manager{
		session:     sess,
		permissions: perms,
		registry:    registry,
		scriptURL:   scriptURL,
		scope:       DefaultScope,
		log:         log,
	}
}

// SetObserver installs a callback receiving every attempted action. Passes
// whose inputs could not be read are not reported.
func (m *Manager) SetObserver(fn func(Action)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observer = fn
}

// Sync applies the lifecycle decision once and returns the action it attempted.
// Failures are logged, never returned. The observer runs after the pass,
// outside the manager lock.
func (m *Manager) Sync(ctx context.Context) Action {
	action, decided := m.sync(ctx)
	if !decided {
		return action
	}

	m.obsMu.RLock()
	observer := m.observer
	m.obsMu.RUnlock()
	if observer != nil {
		observer(action)
	}
	return action
}

// sync serializes passes; decided is false when the inputs could not be read
func (m *Manager) sync(ctx context.Context) (action Action, decided bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.session.Snapshot()
	perm := m.permissions.State()

	existing, err := m.registry.Lookup(ctx)
	if err != nil {
		m.log.Warn("worker registration lookup failed", logger.Error(err))
		return ActionNone, false
	}

	action = Decide(snap.IsLoggedIn, perm, existing != nil)
	log := m.log.With(
		logger.Bool("logged_in", snap.IsLoggedIn),
		logger.String("permission", string(perm)),
		logger.Bool("registered", existing != nil),
		logger.String("action", string(action)))

	switch action {
	case ActionRegister:
		reg, err := m.registry.Register(ctx, m.scriptURL, m.scope)
		if err != nil {
			log.Warn("worker registration failed", logger.Error(err))
			break
		}
		log.Info("worker registered",
			logger.String("script_url", reg.ScriptURL),
			logger.String("scope", reg.Scope))
	case ActionUnregister:
		if err := m.registry.Unregister(ctx); err != nil {
			log.Warn("worker unregistration failed", logger.Error(err))
			break
		}
		log.Info("worker unregistered")
	default:
		log.Trace("worker lifecycle unchanged")
	}

	return action, true
}

// Registration returns the current registration, or nil when none exists
func (m *Manager) Registration(ctx context.Context) (*Registration, error) {
	return m.registry.Lookup(ctx)
}

// ScriptURL returns the worker script path
func (m *Manager) ScriptURL() string {
	return m.scriptURL
}

// GetLogger returns the serviceworker module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("serviceworker")
}
