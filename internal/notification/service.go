// Package notification is the push façade the rest of the agent talks to and
// the provider that ties it to the session lifecycle. Nothing here returns an
// error to callers: push is an enhancement, so every failure degrades to
// "notifications unavailable" with a log entry.
package notification

import (
	"context"
	"sync"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
)

// SelectBackend picks the backend for the platform. Native platforms get the
// native backend, everything else the web one.
func SelectBackend(info platform.Info, web, native push.Backend) push.Backend {
	if info.Native {
		return native
	}
	return web
}

// Service is the platform-independent push façade. The platform and backend
// are fixed at construction.
type Service struct {
	info    platform.Info
	backend push.Backend
	log     logger.Logger

	mu          sync.Mutex
	initialized bool
}

// NewService creates the façade over backend
func NewService(info platform.Info, backend push.Backend, log logger.Logger) *Service {
	if log == nil {
		log = GetLogger()
	}
	return &Service{
		info:    info,
		backend: backend,
		log:     log.With(logger.String("platform", info.String())),
	}
}

// Platform returns the platform the service was built for
func (s *Service) Platform() platform.Info {
	return s.info
}

// Backend returns the selected backend
func (s *Service) Backend() push.Backend {
	return s.backend
}

// Initialize prepares the backend once. Failures are logged and a later
// call tries again.
func (s *Service) Initialize(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return
	}
	if !s.backend.IsSupported() {
		s.log.Info("push notifications not supported on this runtime")
		s.initialized = true
		return
	}
	if err := s.backend.Initialize(ctx); err != nil {
		s.log.Warn("failed to initialize push backend", logger.Error(err))
		return
	}
	s.initialized = true
}

// RequestPermission reports whether notification permission is granted,
// prompting when it has not been answered yet
func (s *Service) RequestPermission(ctx context.Context) bool {
	if !s.backend.IsSupported() {
		return false
	}
	granted, err := s.backend.RequestPermission(ctx)
	if err != nil {
		s.log.Warn("permission request failed", logger.Error(err))
		return false
	}
	return granted
}

// GetToken returns the device token or "" when none is available
func (s *Service) GetToken(ctx context.Context) string {
	if !s.backend.IsSupported() {
		return ""
	}
	token, err := s.backend.GetToken(ctx)
	switch {
	case err == nil:
		return token
	case errors.Is(err, push.ErrTokenPending):
		s.log.Debug("device token will be registered when it arrives")
	default:
		s.log.Warn("failed to get device token", logger.Error(err))
	}
	return ""
}

// OnMessage subscribes fn to foreground messages
func (s *Service) OnMessage(fn push.MessageHandler) func() {
	if !s.backend.IsSupported() {
		return func() {}
	}
	return s.backend.OnMessage(fn)
}

// OnBackgroundMessage sets the background message handler
func (s *Service) OnBackgroundMessage(fn push.MessageHandler) {
	if !s.backend.IsSupported() {
		return
	}
	s.backend.OnBackgroundMessage(fn)
}

// IsSupported reports whether push works on this runtime
func (s *Service) IsSupported() bool {
	return s.backend.IsSupported()
}

// Close releases the backend
func (s *Service) Close() error {
	return s.backend.Close()
}

// GetLogger returns the notification module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}
