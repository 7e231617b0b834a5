package mqtt

import (
	"context"
	"fmt"
	"maps"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

// client implements the Client interface.
type client struct {
	config          Config
	internalClient  paho.Client
	lastConnAttempt time.Time
	log             logger.Logger

	mu            sync.Mutex
	subscriptions map[string]MessageHandler
	onConnect     func()
}

// NewClient creates a new MQTT client. Zero durations in cfg take defaults.
func NewClient(cfg Config, log logger.Logger) (Client, error) {
	if cfg.Broker == "" {
		return nil, errors.Newf("mqtt broker is not configured").
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if _, err := url.Parse(cfg.Broker); err != nil {
		return nil, errors.New(fmt.Errorf("invalid broker URL: %w", err)).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}

	d := DefaultConfig()
	if cfg.ReconnectCooldown == 0 {
		cfg.ReconnectCooldown = d.ReconnectCooldown
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = d.ConnectTimeout
	}
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = d.PublishTimeout
	}
	if cfg.DisconnectTimeout == 0 {
		cfg.DisconnectTimeout = d.DisconnectTimeout
	}
	if cfg.QoS > 2 {
		cfg.QoS = d.QoS
	}
	if log == nil {
		log = GetLogger()
	}

	return &client{
		config:        cfg,
		log:           log.With(logger.String("broker", cfg.Broker)),
		subscriptions: make(map[string]MessageHandler),
	}, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		return nil
	}
	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since).
			Component("mqtt").
			Category(errors.CategoryMessaging).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(fmt.Errorf("failed to resolve hostname %s: %w", host, err)).
				Component("mqtt").
				Category(errors.CategoryNetwork).
				Context("operation", "resolve_broker").
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(c.handleConnectionLost)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if !waitToken(ctx, token, c.config.ConnectTimeout) {
		return errors.Newf("connection timeout").
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("operation", "connect").
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(fmt.Errorf("connection error: %w", err)).
			Component("mqtt").
			Category(errors.CategoryMessaging).
			Context("operation", "connect").
			Build()
	}

	return nil
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryState).
			Build()
	}

	c.log.Debug("publishing", logger.String("topic", topic), logger.Int("size", len(payload)))

	token := c.paho().Publish(topic, c.config.QoS, c.config.Retain, payload)
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		return errors.Newf("publish timeout").
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("topic", topic).
			Build()
	}
	return token.Error()
}

// Subscribe registers handler for topic and subscribes now when connected
func (c *client) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	c.mu.Lock()
	c.subscriptions[topic] = handler
	c.mu.Unlock()

	if !c.IsConnected() {
		// restored by handleConnect
		return nil
	}
	return c.subscribe(ctx, topic, handler)
}

func (c *client) subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	token := c.paho().Subscribe(topic, c.config.QoS, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		return errors.Newf("subscribe timeout").
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("topic", topic).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMessaging).
			Context("topic", topic).
			Build()
	}
	return nil
}

// SetOnConnect sets the post-connect callback
func (c *client) SetOnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	pc := c.paho()
	return pc != nil && pc.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	pc := c.paho()
	if pc != nil && pc.IsConnectionOpen() {
		pc.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.log.Info("disconnected from MQTT broker")
	}
}

func (c *client) paho() paho.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internalClient
}

// handleConnect runs on paho's goroutine after every (re)connect
func (c *client) handleConnect(_ paho.Client) {
	c.log.Info("connected to MQTT broker")

	c.mu.Lock()
	subs := maps.Clone(c.subscriptions)
	onConnect := c.onConnect
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
	defer cancel()
	for topic, handler := range subs {
		if err := c.subscribe(ctx, topic, handler); err != nil {
			c.log.Warn("failed to restore subscription", logger.String("topic", topic), logger.Error(err))
		}
	}

	if onConnect != nil {
		onConnect()
	}
}

func (c *client) handleConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost, reconnecting", logger.Error(err))
}

// waitToken waits for a paho token, bounded by timeout and ctx
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
