// Package push defines the contract shared by the platform push backends and
// the pieces both of them use: the permission state, the message payload,
// idempotent device-token registration and the pending-token future.
//
// The concrete transports live in the web and native subpackages.
package push

import (
	"context"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

// Notification is the displayable part of a push message
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// Payload is the normalized message handed to the rest of the application.
// Transport-specific fields never appear here.
type Payload struct {
	Notification *Notification  `json:"notification,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Title returns the notification title or ""
func (p Payload) Title() string {
	if p.Notification == nil {
		return ""
	}
	return p.Notification.Title
}

// Body returns the notification body or ""
func (p Payload) Body() string {
	if p.Notification == nil {
		return ""
	}
	return p.Notification.Body
}

// DataString returns Data[key] when it is a non-empty string
func (p Payload) DataString(key string) string {
	if s, ok := p.Data[key].(string); ok {
		return s
	}
	return ""
}

// MessageHandler receives push messages
type MessageHandler func(Payload)

// Backend is a platform push transport
type Backend interface {
	// Initialize prepares the transport. Calling it again is a no-op.
	Initialize(ctx context.Context) error
	// RequestPermission asks for notification permission and reports whether it is granted
	RequestPermission(ctx context.Context) (bool, error)
	// GetToken returns the device token, registering it with the Tabla backend
	GetToken(ctx context.Context) (string, error)
	// OnMessage subscribes fn to foreground messages
	OnMessage(fn MessageHandler) (unsubscribe func())
	// OnBackgroundMessage sets the handler for messages arriving without a foreground listener
	OnBackgroundMessage(fn MessageHandler)
	// IsSupported reports whether push works on this runtime at all
	IsSupported() bool
	Close() error
}

// Sentinel errors returned by backends
var (
	ErrUnsupported = errors.New(errors.NewStd("push notifications are not supported on this platform")).
		Component("push").
		Category(errors.CategoryUnsupported).
		Build()

	ErrPermissionNotGranted = errors.New(errors.NewStd("notification permission not granted")).
		Component("push").
		Category(errors.CategoryPermission).
		Build()

	// ErrTokenPending means registration was started but the token has not
	// arrived yet; it will still be registered when it does
	ErrTokenPending = errors.New(errors.NewStd("device token not delivered yet")).
		Component("push").
		Category(errors.CategoryTimeout).
		Build()

	ErrNotInitialized = errors.New(errors.NewStd("push backend not initialized")).
		Component("push").
		Category(errors.CategoryState).
		Build()
)

// RedactToken shortens a device token for logging
func RedactToken(token string) string {
	return logger.RedactToken(token)
}

// GetLogger returns the push module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("push")
}
