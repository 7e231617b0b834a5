package native

import (
	"context"
	"sync"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/tabladeV/manager.tabla-sub002/internal/events"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
)

const (
	defaultTokenWait = 10 * time.Second
	retryConsumer    = "push.native.retry"
)

// EventSource is the part of the event bus the backend subscribes to
type EventSource interface {
	RegisterConsumer(consumer events.EventConsumer) error
	UnregisterConsumer(name string)
}

// Options configure a native Backend
type Options struct {
	Platform  platform.Info
	Plugin    Plugin
	Registrar *push.TokenRegistrar
	Events    EventSource
	// TokenWait bounds how long GetToken waits for the registration event
	TokenWait time.Duration
	Logger    logger.Logger
}

// Backend is the native push backend
type Backend struct {
	opts Options
	log  logger.Logger

	mu          sync.Mutex
	initialized bool
	future      *push.TokenFuture
	token       string
	nextID      int
	listeners   map[int]push.MessageHandler
}

var _ push.Backend = (*Backend)(nil)

// New creates a native backend
func New(opts Options) *Backend {
	if opts.TokenWait <= 0 {
		opts.TokenWait = defaultTokenWait
	}
	log := opts.Logger
	if log == nil {
		log = push.GetLogger().Module("native")
	}
	return &Backend{
		opts:      opts,
		log:       log.With(logger.String("platform", opts.Platform.String())),
		listeners: make(map[int]push.MessageHandler),
	}
}

// IsSupported is always true on native platforms
func (b *Backend) IsSupported() bool {
	return true
}

// Initialize wires the plugin callbacks and the pending-token retry.
// Calling it again is a no-op.
func (b *Backend) Initialize(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	b.opts.Plugin.SetHandlers(Handlers{
		OnRegistration:      b.handleRegistration,
		OnRegistrationError: b.handleRegistrationError,
		OnMessage:           b.handleMessage,
	})

	if b.opts.Events != nil {
		consumer := events.NewConsumer(retryConsumer, b.retryPending,
			events.TopicAuthStateChange, events.TopicRestaurantChange)
		if err := b.opts.Events.RegisterConsumer(consumer); err != nil {
			return err
		}
	}

	b.initialized = true
	b.log.Info("native push initialized")
	return nil
}

// RequestPermission checks the permission and prompts when it is unanswered
func (b *Backend) RequestPermission(ctx context.Context) (bool, error) {
	perm, err := b.opts.Plugin.CheckPermissions(ctx)
	if err != nil {
		return false, err
	}
	if perm == push.PermissionDefault {
		if perm, err = b.opts.Plugin.RequestPermissions(ctx); err != nil {
			return false, err
		}
	}
	return perm == push.PermissionGranted, nil
}

// Register starts registration and returns the future the registration
// event resolves. While a registration is in flight the same future is returned.
func (b *Backend) Register(ctx context.Context) *push.TokenFuture {
	b.mu.Lock()
	if b.future != nil {
		if _, _, done := b.future.Result(); !done {
			f := b.future
			b.mu.Unlock()
			return f
		}
	}
	f := push.NewTokenFuture()
	b.future = f
	b.mu.Unlock()

	if err := b.opts.Plugin.Register(ctx); err != nil {
		b.log.Warn("native push registration failed to start", logger.Error(err))
		f.Reject(err)
	}
	return f
}

// GetToken starts registration and waits up to TokenWait for the token.
// When the wait expires it returns push.ErrTokenPending; the token is still
// registered with the backend when it arrives.
func (b *Backend) GetToken(ctx context.Context) (string, error) {
	perm, err := b.opts.Plugin.CheckPermissions(ctx)
	if err != nil {
		return "", err
	}
	if perm != push.PermissionGranted {
		return "", push.ErrPermissionNotGranted
	}

	f := b.Register(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, b.opts.TokenWait)
	defer cancel()
	return f.Wait(waitCtx)
}

// OnMessage subscribes fn to incoming messages
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

// OnBackgroundMessage is a no-op: the OS presents background messages itself
func (b *Backend) OnBackgroundMessage(push.MessageHandler) {
	b.log.Debug("background handler ignored on native platform")
}

// Token returns the last token delivered by the plugin
func (b *Backend) Token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

// Close detaches from the event bus and closes the plugin
func (b *Backend) Close() error {
	b.mu.Lock()
	wasInitialized := b.initialized
	b.initialized = false
	b.mu.Unlock()

	if wasInitialized && b.opts.Events != nil {
		b.opts.Events.UnregisterConsumer(retryConsumer)
	}
	return b.opts.Plugin.Close()
}

func (b *Backend) handleRegistration(token string) {
	b.mu.Lock()
	b.token = token
	f := b.future
	b.mu.Unlock()

	if f != nil {
		f.Resolve(token)
	}

	b.log.Info("native push token received",
		logger.Token("token", token),
		logger.String("device_type", string(b.opts.Platform.DeviceType())))

	// registered out of band so a token arriving after GetToken gave up is not lost
	b.opts.Registrar.Register(context.Background(), token)
}

func (b *Backend) handleRegistrationError(err error) {
	b.mu.Lock()
	f := b.future
	b.mu.Unlock()

	if f != nil {
		f.Reject(err)
	}
	b.log.Warn("native push registration error", logger.Error(err))
}

func (b *Backend) retryPending(e events.Event) error {
	result := b.opts.Registrar.RetryPending(context.Background())
	if result != push.ResultNone {
		b.log.Debug("pending token retry",
			logger.String("trigger", string(e.Topic())),
			logger.String("result", string(result)))
	}
	return nil
}

func (b *Backend) handleMessage(msg Message) {
	b.logTransportDetails(msg.Raw)

	p := push.Payload{Notification: msg.Notification, Data: msg.Data}

	b.mu.Lock()
	listeners := make([]push.MessageHandler, 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
}

// logTransportDetails logs platform-specific payload fields. They are never
// passed on to listeners.
func (b *Backend) logTransportDetails(raw []byte) {
	if len(raw) == 0 {
		return
	}
	obj, err := jason.NewObjectFromBytes(raw)
	if err != nil {
		return
	}

	switch b.opts.Platform.Platform {
	case platform.IOS:
		aps, err := obj.GetObject("aps")
		if err != nil {
			return
		}
		fields := []logger.Field{}
		if badge, err := aps.GetInt64("badge"); err == nil {
			fields = append(fields, logger.Int64("badge", badge))
		}
		if sound, err := aps.GetString("sound"); err == nil {
			fields = append(fields, logger.String("sound", sound))
		}
		if category, err := aps.GetString("category"); err == nil {
			fields = append(fields, logger.String("category", category))
		}
		b.log.Debug("apns payload", fields...)
	case platform.Android:
		if priority, err := obj.GetString("priority"); err == nil {
			b.log.Debug("android payload", logger.String("priority", priority))
		}
	}
}
