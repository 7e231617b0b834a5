package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tabladeV/manager.tabla-sub002/internal/api/middleware"
	"github.com/tabladeV/manager.tabla-sub002/internal/backend"
	"github.com/tabladeV/manager.tabla-sub002/internal/buildinfo"
	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/events"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/observability"
	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
	"github.com/tabladeV/manager.tabla-sub002/internal/serviceworker"
	"github.com/tabladeV/manager.tabla-sub002/internal/session"
)

// SessionController reads and changes the auth/restaurant state
type SessionController interface {
	Snapshot() session.Snapshot
	Login(ctx context.Context, accessToken, refreshToken, restaurantID string) error
	Logout(ctx context.Context) error
	SwitchRestaurant(ctx context.Context, restaurantID string) error
}

// PermissionController reads and answers the notification permission prompt
type PermissionController interface {
	State() push.Permission
	Set(perm push.Permission) error
}

// FocusHandler receives window-focus signals
type FocusHandler interface {
	HandleFocus(ctx context.Context) bool
}

// InboxReader serves the notification inbox
type InboxReader interface {
	PageSize() int
	List(ctx context.Context, limit, offset int) (*backend.NotificationPage, error)
	MarkRead(ctx context.Context, id int64) error
	UnreadCount(ctx context.Context) (int, error)
}

// TokenStatus reports device token registration progress
type TokenStatus interface {
	PendingToken() string
	LastRegistered() (token, restaurantID string)
}

// WorkerStatus reports the service worker registration
type WorkerStatus interface {
	Registration(ctx context.Context) (*serviceworker.Registration, error)
}

// ServiceStatus reports what the push service runs on
type ServiceStatus interface {
	Platform() platform.Info
	IsSupported() bool
}

// EventStats reports event bus counters
type EventStats interface {
	GetStats() events.EventBusStats
}

// Server is the control API HTTP server.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	logger   logger.Logger

	// Dependencies, all optional. Routes whose dependency is missing answer 503.
	session     SessionController
	permissions PermissionController
	focus       FocusHandler
	inbox       InboxReader
	tokens      TokenStatus
	workers     WorkerStatus
	service     ServiceStatus
	eventStats  EventStats
	metrics     *observability.Metrics
	build       buildinfo.BuildInfo

	// Lifecycle management
	mu        sync.Mutex
	running   bool
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) {
		s.logger = log
	}
}

// WithSession sets the session controller.
func WithSession(sess SessionController) ServerOption {
	return func(s *Server) {
		s.session = sess
	}
}

// WithPermissions sets the permission controller.
func WithPermissions(perms PermissionController) ServerOption {
	return func(s *Server) {
		s.permissions = perms
	}
}

// WithFocusHandler sets the receiver of focus signals, normally the notification provider.
func WithFocusHandler(h FocusHandler) ServerOption {
	return func(s *Server) {
		s.focus = h
	}
}

// WithInbox sets the notification inbox.
func WithInbox(inbox InboxReader) ServerOption {
	return func(s *Server) {
		s.inbox = inbox
	}
}

// WithTokenStatus sets the device token registrar reported by /api/v1/status.
func WithTokenStatus(tokens TokenStatus) ServerOption {
	return func(s *Server) {
		s.tokens = tokens
	}
}

// WithWorkerStatus sets the service worker manager reported by /api/v1/status.
func WithWorkerStatus(workers WorkerStatus) ServerOption {
	return func(s *Server) {
		s.workers = workers
	}
}

// WithService sets the push service reported by /api/v1/status.
func WithService(service ServiceStatus) ServerOption {
	return func(s *Server) {
		s.service = service
	}
}

// WithEventStats sets the event bus reported by /api/v1/status.
func WithEventStats(stats EventStats) ServerOption {
	return func(s *Server) {
		s.eventStats = stats
	}
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithBuildInfo sets the build metadata reported by /healthz.
func WithBuildInfo(info buildinfo.BuildInfo) ServerOption {
	return func(s *Server) {
		s.build = info
	}
}

// New creates a new control API server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, errors.New(fmt.Errorf("invalid server configuration: %w", err)).
			Component("api").
			Category(errors.CategoryConfiguration).
			Context("listen", settings.Agent.Listen).
			Build()
	}

	s := &Server{
		config:    config,
		settings:  settings,
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = GetLogger()
	}
	if s.build == nil {
		s.build = (*buildinfo.Context)(nil)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.logger.Info("control API initialized",
		logger.String("address", config.Address()),
		logger.Bool("debug", config.Debug))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestLogger(s.logger.Module("http")))

	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins

	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewGzip())
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.getStatus)

	v1.POST("/session/login", s.login, s.requireSession)
	v1.POST("/session/logout", s.logout, s.requireSession)
	v1.PUT("/session/restaurant", s.switchRestaurant, s.requireSession)

	v1.PUT("/permission", s.setPermission, s.requirePermissions)
	v1.POST("/focus", s.handleFocus, s.requireFocus)

	v1.GET("/inbox", s.listInbox, s.requireInbox)
	v1.GET("/inbox/unread", s.unreadCount, s.requireInbox)
	v1.POST("/inbox/:id/read", s.markRead, s.requireInbox)
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.build.GetVersion(),
		"build_date":     s.build.GetBuildDate(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Run serves requests until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.startBlocking()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.Shutdown(); err != nil {
			return err
		}
		return <-errCh
	}
}

// Start begins serving HTTP requests in a background goroutine.
// Use Shutdown() to stop the server.
func (s *Server) Start() {
	go func() {
		if err := s.startBlocking(); err != nil {
			s.logger.Error("control API server error", logger.Error(err))
		}
	}()
}

// startBlocking serves HTTP requests and blocks until the server is shut down.
func (s *Server) startBlocking() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.Newf("control API already running").
			Component("api").
			Category(errors.CategoryState).
			Build()
	}
	s.running = true
	s.mu.Unlock()

	addr := s.config.Address()
	s.logger.Info("starting control API", logger.String("address", addr))

	err := s.echo.Start(addr)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(fmt.Errorf("server error: %w", err)).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", addr).
			Build()
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Error("error during control API shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.logger.Info("control API shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Config returns the effective server configuration.
func (s *Server) Config() *Config {
	return s.config
}
