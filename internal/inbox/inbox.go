// Package inbox is the notification list shown to the operator. Pages come
// from the Tabla API and are cached; a newNotificationReceived event drops the
// cache and re-fetches the first page, so the list follows pushes without
// polling.
package inbox

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tabladeV/manager.tabla-sub002/internal/backend"
	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/events"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/observability/metrics"
)

const (
	// ConsumerName is the inbox's event bus consumer name
	ConsumerName = "inbox"

	defaultPageSize = 20
	defaultTTL      = 5 * time.Minute
	refreshTimeout  = 30 * time.Second
)

// API is the part of the Tabla API the inbox reads
type API interface {
	ListNotifications(ctx context.Context, limit, offset int) (*backend.NotificationPage, error)
	MarkNotificationRead(ctx context.Context, id int64) error
}

// Config configures an Inbox
type Config struct {
	PageSize int
	CacheTTL time.Duration
	Metrics  *metrics.PushMetrics
}

// Inbox caches notification pages
type Inbox struct {
	api      API
	cache    *cache.Cache
	pageSize int
	metrics  *metrics.PushMetrics
	log      logger.Logger

	// mu orders cache writes against invalidation and read-marking
	mu sync.Mutex
	// gen changes whenever cached pages are flushed or edited; a fetch
	// started under an older gen is returned but not cached
	gen uint64
}

// New creates an inbox over api
func New(api API, cfg Config, log logger.Logger) *Inbox {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultTTL
	}
	if log == nil {
		log = GetLogger()
	}
	return &Inbox{
		api:      api,
		cache:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		pageSize: cfg.PageSize,
		metrics:  cfg.Metrics,
		log:      log,
	}
}

// PageSize returns the default page size
func (i *Inbox) PageSize() int {
	return i.pageSize
}

// List returns one page of notifications, from cache when possible
func (i *Inbox) List(ctx context.Context, limit, offset int) (*backend.NotificationPage, error) {
	if limit <= 0 {
		limit = i.pageSize
	}
	if offset < 0 {
		return nil, errors.Newf("offset must not be negative").
			Component("inbox").
			Category(errors.CategoryValidation).
			Context("offset", offset).
			Build()
	}

	key := pageKey(limit, offset)
	if cached, ok := i.cache.Get(key); ok {
		page := cached.(backend.NotificationPage)
		return clonePage(&page), nil
	}

	i.mu.Lock()
	gen := i.gen
	i.mu.Unlock()

	page, err := i.api.ListNotifications(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	if i.gen == gen {
		i.cache.SetDefault(key, *clonePage(page))
	}
	i.mu.Unlock()
	return page, nil
}

// Refresh drops every cached page and fetches the first page again
func (i *Inbox) Refresh(ctx context.Context) error {
	i.mu.Lock()
	i.gen++
	i.cache.Flush()
	i.mu.Unlock()

	_, err := i.List(ctx, i.pageSize, 0)
	i.metrics.RecordInboxRefresh(err)
	if err != nil {
		i.log.Warn("inbox refresh failed", logger.Error(err))
		return err
	}
	i.log.Debug("inbox refreshed")
	return nil
}

// MarkRead marks a notification read on the server and in every cached page
func (i *Inbox) MarkRead(ctx context.Context, id int64) error {
	if err := i.api.MarkNotificationRead(ctx, id); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.gen++
	for key, item := range i.cache.Items() {
		page, ok := item.Object.(backend.NotificationPage)
		if !ok {
			continue
		}
		idx := slices.IndexFunc(page.Results, func(n backend.Notification) bool { return n.ID == id })
		if idx < 0 {
			continue
		}

		updated := clonePage(&page)
		updated.Results[idx].IsRead = true

		ttl := cache.DefaultExpiration
		if item.Expiration > 0 {
			ttl = time.Until(time.Unix(0, item.Expiration))
			if ttl <= 0 {
				continue
			}
		}
		i.cache.Set(key, *updated, ttl)
	}
	return nil
}

// UnreadCount counts unread notifications on the first page
func (i *Inbox) UnreadCount(ctx context.Context) (int, error) {
	page, err := i.List(ctx, i.pageSize, 0)
	if err != nil {
		return 0, err
	}
	unread := 0
	for _, n := range page.Results {
		if !n.IsRead {
			unread++
		}
	}
	return unread, nil
}

// Consumer returns the event consumer that refreshes the inbox on every
// received notification
func (i *Inbox) Consumer() events.EventConsumer {
	return events.NewConsumer(ConsumerName, func(events.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		return i.Refresh(ctx)
	}, events.TopicNewNotification)
}

func pageKey(limit, offset int) string {
	return fmt.Sprintf("page:%d:%d", limit, offset)
}

func clonePage(p *backend.NotificationPage) *backend.NotificationPage {
	c := *p
	c.Results = slices.Clone(p.Results)
	return &c
}

// GetLogger returns the inbox module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("inbox")
}
