package web

import (
	"context"
	"sync"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
	"github.com/tabladeV/manager.tabla-sub002/internal/serviceworker"
)

// PermissionRequester resolves and reports the notification permission
type PermissionRequester interface {
	State() push.Permission
	Request(ctx context.Context) (push.Permission, error)
}

// WorkerSource returns the active worker registration
type WorkerSource interface {
	Registration(ctx context.Context) (*serviceworker.Registration, error)
}

// Options configure a web Backend
type Options struct {
	Platform    platform.Info
	NewSDK      func() (MessagingSDK, error)
	Permissions PermissionRequester
	Workers     WorkerSource
	Registrar   *push.TokenRegistrar
	VAPIDKey    string
	Logger      logger.Logger
}

// Backend is the web push backend
type Backend struct {
	opts Options
	log  logger.Logger

	mu          sync.Mutex
	sdk         MessagingSDK
	initialized bool
	nextID      int
	listeners   map[int]push.MessageHandler
	background  push.MessageHandler
}

var _ push.Backend = (*Backend)(nil)

// New creates a web backend
func New(opts Options) *Backend {
	log := opts.Logger
	if log == nil {
		log = push.GetLogger().Module("web")
	}
	return &Backend{
		opts:      opts,
		log:       log,
		listeners: make(map[int]push.MessageHandler),
	}
}

// IsSupported reports whether the runtime has a secure context, service
// workers and the notification API
func (b *Backend) IsSupported() bool {
	return b.opts.Platform.SupportsWebPush()
}

// Initialize creates the messaging SDK. Outside a supported runtime it does nothing.
func (b *Backend) Initialize(_ context.Context) error {
	if !b.IsSupported() {
		b.log.Debug("web push unsupported, skipping initialization")
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	sdk, err := b.opts.NewSDK()
	if err != nil {
		return errors.New(err).
			Component("push.web").
			Category(errors.CategoryMessaging).
			Context("operation", "initialize").
			Build()
	}
	sdk.SetMessageHandler(b.dispatch)

	b.sdk = sdk
	b.initialized = true
	b.log.Info("web push initialized")
	return nil
}

// RequestPermission resolves the permission prompt
func (b *Backend) RequestPermission(ctx context.Context) (bool, error) {
	if !b.IsSupported() {
		return false, nil
	}

	perm, err := b.opts.Permissions.Request(ctx)
	if err != nil {
		return false, err
	}
	return perm == push.PermissionGranted, nil
}

// GetToken fetches the token for the worker registration and registers it
// with the Tabla backend
func (b *Backend) GetToken(ctx context.Context) (string, error) {
	if !b.IsSupported() {
		return "", push.ErrUnsupported
	}
	if b.opts.Permissions.State() != push.PermissionGranted {
		return "", push.ErrPermissionNotGranted
	}

	b.mu.Lock()
	sdk := b.sdk
	b.mu.Unlock()
	if sdk == nil {
		return "", push.ErrNotInitialized
	}

	if b.opts.VAPIDKey == "" {
		return "", errors.Newf("VAPID key is not configured").
			Component("push.web").
			Category(errors.CategoryConfiguration).
			Build()
	}

	reg, err := b.opts.Workers.Registration(ctx)
	if err != nil {
		return "", err
	}
	if reg == nil {
		return "", errors.Newf("no service worker registration").
			Component("push.web").
			Category(errors.CategoryServiceWorker).
			Context("operation", "get_token").
			Build()
	}

	token, err := sdk.GetToken(ctx, TokenOptions{VAPIDKey: b.opts.VAPIDKey, Registration: reg})
	if err != nil {
		return "", err
	}

	result := b.opts.Registrar.Register(ctx, token)
	b.log.Debug("web push token obtained",
		logger.Token("token", token),
		logger.String("registration", string(result)))
	return token, nil
}

// OnMessage subscribes fn to foreground messages
func (b *Backend) OnMessage(fn push.MessageHandler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// OnBackgroundMessage sets the worker-side handler
func (b *Backend) OnBackgroundMessage(fn push.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.background = fn
}

// dispatch routes a message to the foreground listeners, or to the worker
// when nobody is listening and a worker is registered
func (b *Backend) dispatch(p push.Payload) {
	b.mu.Lock()
	listeners := make([]push.MessageHandler, 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	background := b.background
	b.mu.Unlock()

	if len(listeners) > 0 {
		for _, fn := range listeners {
			fn(p)
		}
		return
	}

	if background == nil {
		b.log.Debug("dropping message with no listener", logger.String("title", p.Title()))
		return
	}
	reg, err := b.opts.Workers.Registration(context.Background())
	if err != nil || reg == nil {
		b.log.Debug("dropping background message without worker registration")
		return
	}
	background(p)
}

// Close shuts the SDK down
func (b *Backend) Close() error {
	b.mu.Lock()
	sdk := b.sdk
	b.sdk = nil
	b.initialized = false
	b.mu.Unlock()

	if sdk == nil {
		return nil
	}
	return sdk.Close()
}
