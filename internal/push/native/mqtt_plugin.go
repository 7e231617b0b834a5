package native

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/mqtt"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
	"github.com/tabladeV/manager.tabla-sub002/internal/storage"
)

// PermissionStore is the persisted permission state
type PermissionStore interface {
	State() push.Permission
	Request(ctx context.Context) (push.Permission, error)
}

// MQTTPlugin delivers pushes over an MQTT broker. The device id, persisted in
// storage, is the push token; messages for the device are published to
// <prefix>/devices/<id>.
type MQTTPlugin struct {
	client mqtt.Client
	kv     storage.Store
	perms  PermissionStore
	prefix string
	log    logger.Logger

	mu       sync.Mutex
	handlers Handlers
	deviceID string
}

var _ Plugin = (*MQTTPlugin)(nil)

// NewMQTTPlugin creates the plugin over an unconnected MQTT client
func NewMQTTPlugin(client mqtt.Client, kv storage.Store, perms PermissionStore, topicPrefix string, log logger.Logger) *MQTTPlugin {
	if log == nil {
		log = push.GetLogger().Module("native")
	}
	p := &MQTTPlugin{
		client: client,
		kv:     kv,
		perms:  perms,
		prefix: strings.TrimSuffix(topicPrefix, "/"),
		log:    log,
	}
	client.SetOnConnect(p.announce)
	return p
}

// DeviceTopic returns the topic messages for deviceID are published to
func DeviceTopic(prefix, deviceID string) string {
	return fmt.Sprintf("%s/devices/%s", strings.TrimSuffix(prefix, "/"), deviceID)
}

// CheckPermissions returns the stored permission
func (p *MQTTPlugin) CheckPermissions(_ context.Context) (push.Permission, error) {
	return p.perms.State(), nil
}

// RequestPermissions resolves the permission prompt
func (p *MQTTPlugin) RequestPermissions(ctx context.Context) (push.Permission, error) {
	return p.perms.Request(ctx)
}

// SetHandlers installs the callbacks
func (p *MQTTPlugin) SetHandlers(h Handlers) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = h
}

// Register subscribes the device topic. The token is announced once the
// subscription is live, either right away or after the next (re)connect.
func (p *MQTTPlugin) Register(ctx context.Context) error {
	id, err := p.ensureDeviceID()
	if err != nil {
		return err
	}

	if err := p.client.Subscribe(ctx, DeviceTopic(p.prefix, id), p.handleMessage); err != nil {
		return err
	}

	if p.client.IsConnected() {
		p.announce()
		return nil
	}

	if err := p.client.Connect(ctx); err != nil {
		p.registrationFailed(err)
		return err
	}
	return nil
}

// Close disconnects from the broker
func (p *MQTTPlugin) Close() error {
	p.client.Disconnect()
	return nil
}

func (p *MQTTPlugin) ensureDeviceID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.deviceID != "" {
		return p.deviceID, nil
	}
	if id, ok := p.kv.Get(storage.KeyPushDeviceID); ok && id != "" {
		p.deviceID = id
		return id, nil
	}

	id := uuid.NewString()
	if err := p.kv.Set(storage.KeyPushDeviceID, id); err != nil {
		return "", errors.New(err).
			Component("push.native").
			Category(errors.CategoryStorage).
			Context("operation", "persist_device_id").
			Build()
	}
	p.deviceID = id
	p.log.Info("generated push device id")
	return id, nil
}

// announce reports the device token; it runs after every (re)connect
func (p *MQTTPlugin) announce() {
	p.mu.Lock()
	id := p.deviceID
	onRegistration := p.handlers.OnRegistration
	p.mu.Unlock()

	if id == "" || onRegistration == nil {
		return
	}
	onRegistration(id)
}

func (p *MQTTPlugin) registrationFailed(err error) {
	p.mu.Lock()
	onError := p.handlers.OnRegistrationError
	p.mu.Unlock()

	if onError != nil {
		onError(err)
	}
}

// Envelope is the JSON body published to a device topic
type Envelope struct {
	Notification *push.Notification `json:"notification,omitempty"`
	Data         map[string]any     `json:"data,omitempty"`
}

func (p *MQTTPlugin) handleMessage(topic string, payload []byte) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		p.log.Warn("ignoring malformed push message", logger.String("topic", topic), logger.Error(err))
		return
	}

	p.mu.Lock()
	onMessage := p.handlers.OnMessage
	p.mu.Unlock()

	if onMessage != nil {
		onMessage(Message{Notification: envelope.Notification, Data: envelope.Data, Raw: payload})
	}
}
