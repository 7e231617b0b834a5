package native

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/mqtt"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
	"github.com/tabladeV/manager.tabla-sub002/internal/storage"
)

// fakeBroker is an in-process mqtt.Client
type fakeBroker struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	onConnect  func()
	handlers   map[string]mqtt.MessageHandler
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Connect(context.Context) error {
	b.mu.Lock()
	if b.connectErr != nil {
		b.mu.Unlock()
		return b.connectErr
	}
	b.connected = true
	fn := b.onConnect
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (b *fakeBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	fn := b.handlers[topic]
	b.mu.Unlock()
	if fn != nil {
		fn(topic, payload)
	}
	return nil
}

func (b *fakeBroker) Subscribe(_ context.Context, topic string, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) SetOnConnect(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnect = fn
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

type pluginEvents struct {
	mu       sync.Mutex
	tokens   []string
	errs     []error
	messages []Message
}

func (e *pluginEvents) handlers() Handlers {
	return Handlers{
		OnRegistration: func(token string) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.tokens = append(e.tokens, token)
		},
		OnRegistrationError: func(err error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.errs = append(e.errs, err)
		},
		OnMessage: func(msg Message) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.messages = append(e.messages, msg)
		},
	}
}

func newTestPlugin(t *testing.T, broker *fakeBroker, kv storage.Store) (*MQTTPlugin, *pluginEvents) {
	t.Helper()
	perms := push.NewPermissions(kv, push.PromptGrant, quietLogger())
	p := NewMQTTPlugin(broker, kv, perms, "tabla/", quietLogger())
	ev := &pluginEvents{}
	p.SetHandlers(ev.handlers())
	return p, ev
}

func TestDeviceTopic(t *testing.T) {
	assert.Equal(t, "tabla/devices/abc", DeviceTopic("tabla", "abc"))
	assert.Equal(t, "tabla/devices/abc", DeviceTopic("tabla/", "abc"))
}

func TestMQTTPluginAnnouncesPersistedDeviceID(t *testing.T) {
	kv := storage.NewMemoryStore()
	broker := newFakeBroker()
	p, ev := newTestPlugin(t, broker, kv)

	require.NoError(t, p.Register(t.Context()))

	id, ok := kv.Get(storage.KeyPushDeviceID)
	require.True(t, ok)
	assert.Equal(t, []string{id}, ev.tokens)

	// a reconnect announces again; a new plugin reuses the stored id
	require.NoError(t, p.Register(t.Context()))
	assert.Equal(t, []string{id, id}, ev.tokens)

	p2, ev2 := newTestPlugin(t, newFakeBroker(), kv)
	require.NoError(t, p2.Register(t.Context()))
	assert.Equal(t, []string{id}, ev2.tokens)
}

func TestMQTTPluginConnectFailure(t *testing.T) {
	broker := newFakeBroker()
	broker.connectErr = errors.NewStd("connection refused")
	p, ev := newTestPlugin(t, broker, storage.NewMemoryStore())

	require.Error(t, p.Register(t.Context()))
	assert.Empty(t, ev.tokens)
	assert.Len(t, ev.errs, 1)
}

func TestMQTTPluginParsesEnvelope(t *testing.T) {
	kv := storage.NewMemoryStore()
	broker := newFakeBroker()
	p, ev := newTestPlugin(t, broker, kv)
	require.NoError(t, p.Register(t.Context()))
	id, _ := kv.Get(storage.KeyPushDeviceID)

	body, err := json.Marshal(map[string]any{
		"notification": map[string]string{"title": "Cancelled", "body": "Table 4"},
		"data":         map[string]any{"link": "/reservations/9"},
	})
	require.NoError(t, err)

	require.NoError(t, broker.Publish(t.Context(), DeviceTopic("tabla", id), body))
	require.NoError(t, broker.Publish(t.Context(), DeviceTopic("tabla", id), []byte("not json")))

	require.Len(t, ev.messages, 1)
	msg := ev.messages[0]
	assert.Equal(t, "Cancelled", msg.Notification.Title)
	assert.Equal(t, "/reservations/9", msg.Data["link"])
	assert.JSONEq(t, string(body), string(msg.Raw))
}

func TestMQTTPluginPermissions(t *testing.T) {
	kv := storage.NewMemoryStore()
	p, _ := newTestPlugin(t, newFakeBroker(), kv)

	perm, err := p.CheckPermissions(t.Context())
	require.NoError(t, err)
	assert.Equal(t, push.PermissionDefault, perm)

	perm, err = p.RequestPermissions(t.Context())
	require.NoError(t, err)
	assert.Equal(t, push.PermissionGranted, perm)
}
