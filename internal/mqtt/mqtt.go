// Package mqtt wraps the paho client with the connection handling the push
// agent needs: cooldown between connect attempts, automatic reconnects,
// subscriptions that are restored after every reconnect, and bounded waits
// on every broker round trip.
package mqtt

import (
	"context"
	"time"

	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

// MessageHandler receives the topic and payload of an incoming message
type MessageHandler func(topic string, payload []byte)

// Client defines the MQTT operations used by the agent
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic and waits for the broker acknowledgement.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler for topic. The subscription is restored
	// whenever the connection is re-established.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error

	// SetOnConnect sets a callback run after every successful (re)connect,
	// once the subscriptions are in place.
	SetOnConnect(fn func())

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retain   bool

	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		QoS:               1,
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// GetLogger returns the mqtt module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
