// Package web is the push backend for browser-style runtimes: a messaging SDK
// that needs a registered service worker and a VAPID key to hand out tokens.
package web

import (
	"context"

	"github.com/tabladeV/manager.tabla-sub002/internal/push"
	"github.com/tabladeV/manager.tabla-sub002/internal/serviceworker"
)

// TokenOptions are the inputs of a token request
type TokenOptions struct {
	VAPIDKey     string
	Registration *serviceworker.Registration
}

// MessagingSDK is the messaging SDK the backend drives
type MessagingSDK interface {
	// GetToken subscribes the worker registration and returns its token
	GetToken(ctx context.Context, opts TokenOptions) (string, error)
	// SetMessageHandler receives every incoming message
	SetMessageHandler(fn func(push.Payload))
	Close() error
}
