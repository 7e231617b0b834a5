// Package native is the push backend for the mobile builds. Token delivery is
// driven by the platform: Register only starts registration and the token
// arrives later through the registration handler.
package native

import (
	"context"

	"github.com/tabladeV/manager.tabla-sub002/internal/push"
)

// Message is a push message as delivered by the plugin. Raw keeps the full
// transport payload for diagnostics.
type Message struct {
	Notification *push.Notification
	Data         map[string]any
	Raw          []byte
}

// Handlers are the plugin callbacks
type Handlers struct {
	OnRegistration      func(token string)
	OnRegistrationError func(err error)
	OnMessage           func(msg Message)
}

// Plugin is the native push plugin surface
type Plugin interface {
	CheckPermissions(ctx context.Context) (push.Permission, error)
	RequestPermissions(ctx context.Context) (push.Permission, error)
	// Register starts registration; the token is delivered to OnRegistration
	Register(ctx context.Context) error
	SetHandlers(h Handlers)
	Close() error
}
