package notification

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tabladeV/manager.tabla-sub002/internal/events"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/notification/display"
	"github.com/tabladeV/manager.tabla-sub002/internal/observability/metrics"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
	"github.com/tabladeV/manager.tabla-sub002/internal/serviceworker"
	"github.com/tabladeV/manager.tabla-sub002/internal/session"
)

const (
	// DefaultTitlePrefix marks notifications received while the agent is in the foreground
	DefaultTitlePrefix   = "🔔 "
	defaultTitle         = "New notification"
	defaultFocusInterval = 30 * time.Second
	displayTimeout       = 15 * time.Second
)

// SessionSource is the observable auth/restaurant state
type SessionSource interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(prev, cur session.Snapshot)) (cancel func())
}

// WorkerSyncer runs one service worker lifecycle pass
type WorkerSyncer interface {
	Sync(ctx context.Context) serviceworker.Action
}

// PermissionWatcher reports out-of-band permission changes
type PermissionWatcher interface {
	Watch(fn func(push.Permission)) (cancel func())
}

// Publisher is where newNotificationReceived events go
type Publisher interface {
	TryPublish(event events.Event) bool
}

// ProviderOptions wire a Provider
type ProviderOptions struct {
	Service *Service
	Session SessionSource
	// Workers and Permissions are only set on web
	Workers     WorkerSyncer
	Permissions PermissionWatcher
	Display     display.Displayer
	Events      Publisher
	Metrics     *metrics.PushMetrics
	// BaseURL resolves relative deep links
	BaseURL     string
	TitlePrefix string
	// FocusInterval is the minimum gap between focus-triggered refreshes
	FocusInterval time.Duration
	Logger        logger.Logger
}

type transition struct {
	prev, cur session.Snapshot
}

// Provider ties the push service to the session lifecycle: it registers the
// device while someone is logged in, re-registers on restaurant switches and
// turns incoming messages into displayed notifications and bus events.
type Provider struct {
	opts    ProviderOptions
	log     logger.Logger
	limiter *rate.Limiter
	group   singleflight.Group

	mu          sync.Mutex
	started     bool
	queue       []transition
	kick        chan struct{}
	stop        chan struct{}
	wg          sync.WaitGroup
	detach      []func()
	unsubscribe func()
}

// NewProvider creates a provider; nothing happens until Start
func NewProvider(opts ProviderOptions) *Provider {
	if opts.TitlePrefix == "" {
		opts.TitlePrefix = DefaultTitlePrefix
	}
	if opts.FocusInterval <= 0 {
		opts.FocusInterval = defaultFocusInterval
	}
	if opts.Display == nil {
		opts.Display = display.NewLogDisplayer(nil)
	}
	log := opts.Logger
	if log == nil {
		log = GetLogger().Module("provider")
	}
	return &Provider{
		opts:    opts,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(opts.FocusInterval), 1),
		kick:    make(chan struct{}, 1),
	}
}

// Start initializes the service, runs the first worker sync and starts
// following the session. The current session state is handled as if it had
// just changed.
func (p *Provider) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	p.opts.Service.Initialize(ctx)
	p.opts.Service.OnBackgroundMessage(p.handleBackground)

	if p.opts.Workers != nil {
		p.syncWorker(ctx)
		if p.opts.Permissions != nil {
			p.addDetach(p.opts.Permissions.Watch(func(perm push.Permission) {
				p.log.Debug("permission changed", logger.String("permission", string(perm)))
				p.syncWorker(context.Background())
			}))
		}
	}

	p.addDetach(p.opts.Session.Subscribe(p.enqueue))

	// flows get a context Stop never cancels
	p.wg.Add(1)
	go p.loop(context.WithoutCancel(ctx), stop)

	if cur := p.opts.Session.Snapshot(); cur.IsLoggedIn {
		p.enqueue(session.Snapshot{}, cur)
	}
	p.log.Info("notification provider started")
}

// Stop detaches every listener and waits for the transition being handled.
// Calls already in flight run to completion; queued transitions are dropped.
func (p *Provider) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	detach := p.detach
	p.detach = nil
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	stop := p.stop
	p.queue = nil
	p.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	close(stop)
	p.wg.Wait()
	p.log.Info("notification provider stopped")
}

// HandleFocus re-validates the token when the app regains focus. Calls
// closer together than the focus interval are dropped; concurrent calls share
// one refresh. Reports whether a refresh ran.
func (p *Provider) HandleFocus(ctx context.Context) bool {
	if !p.opts.Session.Snapshot().IsLoggedIn {
		return false
	}
	if !p.limiter.Allow() {
		p.log.Debug("focus refresh throttled")
		return false
	}
	p.refresh(ctx, "focus")
	return true
}

// Refresh runs the permission, token and subscription flow right away
func (p *Provider) Refresh(ctx context.Context) string {
	return p.refresh(ctx, "manual")
}

func (p *Provider) addDetach(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detach = append(p.detach, fn)
}

func (p *Provider) enqueue(prev, cur session.Snapshot) {
	p.mu.Lock()
	p.queue = append(p.queue, transition{prev: prev, cur: cur})
	p.mu.Unlock()

	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// loop handles session transitions one at a time, in order
func (p *Provider) loop(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case <-stop:
			return
		case <-p.kick:
		}

		for {
			select {
			case <-stop:
				return
			default:
			}

			p.mu.Lock()
			if len(p.queue) == 0 {
				p.mu.Unlock()
				break
			}
			t := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()

			p.handleTransition(ctx, t)
		}
	}
}

func (p *Provider) handleTransition(ctx context.Context, t transition) {
	switch {
	case !t.cur.IsLoggedIn:
		if t.prev.IsLoggedIn {
			p.log.Info("logged out, detaching message listener")
			p.unsubscribeMessages()
			p.syncWorker(ctx)
		}
	case !t.prev.IsLoggedIn:
		p.refresh(ctx, "login")
	case t.prev.RestaurantID != t.cur.RestaurantID:
		p.log.Info("restaurant changed, refreshing device registration",
			logger.String("previous", t.prev.RestaurantID),
			logger.String("current", t.cur.RestaurantID))
		p.refresh(ctx, "restaurant")
	}
}

// refresh runs permission → token → subscribe. Concurrent callers share one run.
func (p *Provider) refresh(ctx context.Context, reason string) string {
	v, _, _ := p.group.Do("refresh", func() (any, error) {
		return p.runFlow(ctx, reason), nil
	})
	token, _ := v.(string)
	return token
}

func (p *Provider) runFlow(ctx context.Context, reason string) string {
	log := p.log.With(logger.String("reason", reason))

	granted := p.opts.Service.RequestPermission(ctx)
	p.opts.Metrics.RecordPermission(granted)
	if !granted {
		log.Info("notification permission not granted")
		return ""
	}

	// the web token needs a live worker registration
	if p.opts.Workers != nil {
		p.syncWorker(ctx)
	}

	token := p.opts.Service.GetToken(ctx)
	if token == "" {
		log.Debug("no device token yet")
		return ""
	}

	p.subscribeMessages()
	log.Info("device token ready", logger.Token("token", token))
	return token
}

func (p *Provider) subscribeMessages() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsubscribe != nil || !p.started {
		return
	}
	p.unsubscribe = p.opts.Service.OnMessage(p.handleForeground)
}

func (p *Provider) unsubscribeMessages() {
	p.mu.Lock()
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// syncWorker runs a lifecycle pass; the manager's observer records the action
func (p *Provider) syncWorker(ctx context.Context) {
	p.opts.Workers.Sync(ctx)
}

func (p *Provider) handleForeground(payload push.Payload) {
	p.opts.Metrics.RecordMessage(metrics.DeliveryForeground)
	p.deliver(payload, p.opts.TitlePrefix)
}

func (p *Provider) handleBackground(payload push.Payload) {
	p.opts.Metrics.RecordMessage(metrics.DeliveryBackground)
	p.deliver(payload, "")
}

func (p *Provider) deliver(payload push.Payload, prefix string) {
	title := payload.Title()
	if title == "" {
		title = defaultTitle
	}
	link := DeepLink(p.opts.BaseURL, payload.Data)

	ctx, cancel := context.WithTimeout(context.Background(), displayTimeout)
	defer cancel()

	err := p.opts.Display.Show(ctx, display.Notification{
		Title: prefix + title,
		Body:  payload.Body(),
		Link:  link,
		Tag:   payload.DataString("notification_type"),
	})
	if err != nil {
		p.log.Warn("failed to display notification", logger.Error(err))
	}

	if p.opts.Events != nil {
		p.opts.Events.TryPublish(events.NotificationReceived{
			Title: title,
			Body:  payload.Body(),
			Link:  link,
			Data:  payload.Data,
			At:    time.Now(),
		})
	}
}
