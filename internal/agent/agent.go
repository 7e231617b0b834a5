// Package agent assembles the push subsystem from settings and runs it next
// to the control API.
package agent

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tabladeV/manager.tabla-sub002/internal/api"
	"github.com/tabladeV/manager.tabla-sub002/internal/backend"
	"github.com/tabladeV/manager.tabla-sub002/internal/buildinfo"
	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
	"github.com/tabladeV/manager.tabla-sub002/internal/events"
	"github.com/tabladeV/manager.tabla-sub002/internal/httpclient"
	"github.com/tabladeV/manager.tabla-sub002/internal/inbox"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/mqtt"
	"github.com/tabladeV/manager.tabla-sub002/internal/notification"
	"github.com/tabladeV/manager.tabla-sub002/internal/notification/display"
	"github.com/tabladeV/manager.tabla-sub002/internal/observability"
	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
	"github.com/tabladeV/manager.tabla-sub002/internal/push/native"
	"github.com/tabladeV/manager.tabla-sub002/internal/push/web"
	"github.com/tabladeV/manager.tabla-sub002/internal/serviceworker"
	"github.com/tabladeV/manager.tabla-sub002/internal/session"
	"github.com/tabladeV/manager.tabla-sub002/internal/storage"
	"github.com/tabladeV/manager.tabla-sub002/internal/telemetry"
)

const (
	eventBusShutdownTimeout = 5 * time.Second
	telemetryFlushTimeout   = 2 * time.Second
)

// Agent owns every component of a running push agent
type Agent struct {
	settings *conf.Settings
	info     platform.Info
	log      logger.Logger

	store       storage.Store
	bus         *events.EventBus
	session     *session.Store
	http        *httpclient.Client
	api         *backend.Client
	metrics     *observability.Metrics
	permissions *push.Permissions
	registrar   *push.TokenRegistrar
	workers     *serviceworker.Manager
	service     *notification.Service
	provider    *notification.Provider
	inbox       *inbox.Inbox
	server      *api.Server
}

// Option adjusts how New builds the agent
type Option func(*options)

type options struct {
	transport http.RoundTripper
	logger    logger.Logger
}

// WithTransport routes Tabla backend requests through rt
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithLogger sets the agent logger
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// New builds an agent. Nothing connects or listens until Run.
func New(settings *conf.Settings, build *buildinfo.Context, opts ...Option) (*Agent, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = GetLogger()
	}

	a := &Agent{
		settings: settings,
		info:     settings.PlatformInfo(),
		log:      o.logger,
	}
	if err := a.build(build, o.transport); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Agent) build(build *buildinfo.Context, transport http.RoundTripper) error {
	settings := a.settings
	var err error

	a.log.Info("building push agent",
		logger.String("platform", a.info.String()),
		logger.String("version", build.GetVersion()))

	if a.store, err = storage.Open(settings); err != nil {
		return err
	}

	a.bus = events.New(events.DefaultConfig(), a.log.Module("events"))
	a.session = session.New(a.store, a.bus, a.log.Module("session"))

	a.http = httpclient.New(&httpclient.Config{
		BaseURL:        settings.API.BaseURL,
		DefaultTimeout: settings.API.Timeout,
		UserAgent:      settings.API.UserAgent,
		Headers:        a.session,
		Transport:      transport,
	}, a.info)
	a.api = backend.New(a.http, a.log.Module("backend"))

	if a.metrics, err = observability.NewMetrics(); err != nil {
		return err
	}

	a.permissions = push.NewPermissions(a.store, push.PromptPolicy(settings.Push.PermissionPrompt), a.log.Module("permissions"))
	a.registrar = push.NewTokenRegistrar(a.api, a.session, a.info.DeviceType(), a.log.Module("registrar"))
	a.registrar.SetObserver(func(r push.RegistrationResult) {
		a.metrics.Push.RecordRegistration(string(r))
	})

	var webBackend, nativeBackend push.Backend
	if a.info.Native {
		if nativeBackend, err = a.buildNative(); err != nil {
			return err
		}
	} else {
		webBackend = a.buildWeb()
	}

	a.service = notification.NewService(a.info, notification.SelectBackend(a.info, webBackend, nativeBackend), a.log.Module("notification"))
	notification.SetService(a.service)

	shown, err := a.buildDisplay()
	if err != nil {
		return err
	}

	providerOpts := notification.ProviderOptions{
		Service:       a.service,
		Session:       a.session,
		Display:       shown,
		Events:        a.bus,
		Metrics:       a.metrics.Push,
		BaseURL:       settings.App.BaseURL,
		TitlePrefix:   settings.Push.ForegroundTitlePrefix,
		FocusInterval: settings.Agent.FocusInterval,
		Logger:        a.log.Module("provider"),
	}
	if a.workers != nil {
		providerOpts.Workers = a.workers
		providerOpts.Permissions = a.permissions
	}
	a.provider = notification.NewProvider(providerOpts)

	a.inbox = inbox.New(a.api, inbox.Config{
		PageSize: settings.Inbox.PageSize,
		CacheTTL: settings.Inbox.CacheTTL,
		Metrics:  a.metrics.Push,
	}, a.log.Module("inbox"))
	if err = a.bus.RegisterConsumer(a.inbox.Consumer()); err != nil {
		return err
	}

	serverOpts := []api.ServerOption{
		api.WithLogger(a.log.Module("api")),
		api.WithSession(a.session),
		api.WithPermissions(a.permissions),
		api.WithFocusHandler(a.provider),
		api.WithInbox(a.inbox),
		api.WithTokenStatus(a.registrar),
		api.WithService(a.service),
		api.WithEventStats(a.bus),
		api.WithMetrics(a.metrics),
		api.WithBuildInfo(build),
	}
	if a.workers != nil {
		serverOpts = append(serverOpts, api.WithWorkerStatus(a.workers))
	}
	if a.server, err = api.New(settings, serverOpts...); err != nil {
		return err
	}

	return nil
}

func (a *Agent) buildWeb() push.Backend {
	cfg := a.settings.Push

	a.workers = serviceworker.NewManager(a.session, a.permissions,
		serviceworker.NewStoreRegistry(a.store), cfg.ServiceWorkerPath, a.log.Module("serviceworker"))
	a.workers.SetObserver(func(action serviceworker.Action) {
		a.metrics.Push.RecordWorkerAction(string(action))
	})

	sdkLog := a.log.Module("gateway")
	return web.New(web.Options{
		Platform: a.info,
		NewSDK: func() (web.MessagingSDK, error) {
			return web.NewWebSocketSDK(cfg.Web.GatewayURL, cfg.Web.HandshakeTimeout, sdkLog), nil
		},
		Permissions: a.permissions,
		Workers:     a.workers,
		Registrar:   a.registrar,
		VAPIDKey:    cfg.VAPIDKey,
		Logger:      a.log.Module("web"),
	})
}

func (a *Agent) buildNative() (push.Backend, error) {
	cfg := a.settings.Push.Native

	// The plugin reuses this id, keeping the client id and device topic stable across restarts
	deviceID, ok := a.store.Get(storage.KeyPushDeviceID)
	if !ok || deviceID == "" {
		deviceID = uuid.NewString()
		if err := a.store.Set(storage.KeyPushDeviceID, deviceID); err != nil {
			return nil, err
		}
	}

	client, err := mqtt.NewClient(mqtt.Config{
		Broker:   cfg.Broker,
		ClientID: "tabla-push-" + string(a.info.DeviceType()) + "-" + deviceID,
		Username: cfg.Username,
		Password: cfg.Password,
		QoS:      cfg.QoS,
	}, a.log.Module("mqtt"))
	if err != nil {
		return nil, err
	}

	plugin := native.NewMQTTPlugin(client, a.store, a.permissions, cfg.TopicPrefix, a.log.Module("plugin"))
	return native.New(native.Options{
		Platform:  a.info,
		Plugin:    plugin,
		Registrar: a.registrar,
		Events:    a.bus,
		TokenWait: cfg.TokenWait,
		Logger:    a.log.Module("native"),
	}), nil
}

// buildDisplay returns the log displayer and, when URLs are configured, the
// shoutrrr one. The log displayer is kept when nothing else would show messages.
func (a *Agent) buildDisplay() (display.Displayer, error) {
	cfg := a.settings.Display

	var out display.Multi
	if cfg.Log || len(cfg.URLs) == 0 {
		out = append(out, display.NewLogDisplayer(a.log.Module("display")))
	}
	if len(cfg.URLs) > 0 {
		d, err := display.NewShoutrrrDisplayer(cfg.URLs, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

// Run starts the provider and serves the control API until ctx is cancelled
func (a *Agent) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.provider.Start(gctx)
		<-gctx.Done()
		a.provider.Stop()
		return nil
	})
	g.Go(func() error {
		return a.server.Run(gctx)
	})

	a.log.Info("push agent running",
		logger.String("platform", a.info.String()),
		logger.String("listen", a.server.Config().Address()))

	err := g.Wait()
	a.log.Info("push agent stopped")
	return err
}

// Close releases everything New acquired. It is safe on a partially built agent.
func (a *Agent) Close() {
	if a.service != nil {
		if err := a.service.Close(); err != nil {
			a.log.Warn("closing push service failed", logger.Error(err))
		}
	}
	if a.bus != nil {
		if err := a.bus.Shutdown(eventBusShutdownTimeout); err != nil {
			a.log.Warn("event bus shutdown incomplete", logger.Error(err))
		}
	}
	if a.session != nil {
		a.session.Close()
	}
	if a.http != nil {
		a.http.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing storage failed", logger.Error(err))
		}
	}
}

// Platform returns the platform the agent was built for
func (a *Agent) Platform() platform.Info {
	return a.info
}

// Service returns the push façade
func (a *Agent) Service() *notification.Service {
	return a.service
}

// Server returns the control API server
func (a *Agent) Server() *api.Server {
	return a.server
}

// Run builds an agent from settings and runs it until ctx is cancelled.
// Telemetry is set up first so build failures are reported too.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	log := GetLogger()

	active, err := telemetry.Init(settings, build.GetVersion())
	if err != nil {
		log.Warn("telemetry disabled", logger.Error(err))
	}
	if active {
		defer telemetry.Flush(telemetryFlushTimeout)
	}

	a, err := New(settings, build, WithLogger(log))
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

// GetLogger returns the agent module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("agent")
}
