// Package backend is the typed client for the Tabla REST endpoints used by
// the push subsystem: device-token registration and the notification inbox.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/httpclient"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
)

const (
	deviceTokensPath  = "api/v1/device-tokens/"
	notificationsPath = "api/v1/notifications/"

	restaurantHeader = "X-Restaurant-ID"
)

// Requester is the part of httpclient.Client the backend needs
type Requester interface {
	Request(ctx context.Context, method, path string, body any) (*httpclient.Response, error)
	RequestWithHeaders(ctx context.Context, method, path string, body any, header http.Header) (*httpclient.Response, error)
}

// DeviceTokenRequest is the registration body
type DeviceTokenRequest struct {
	Token      string              `json:"token"`
	DeviceType platform.DeviceType `json:"device_type"`
}

// DeviceToken is the server's view of a registered device
type DeviceToken struct {
	ID         int64               `json:"id"`
	Token      string              `json:"token"`
	DeviceType platform.DeviceType `json:"device_type"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Notification is one entry of the operator's notification list
type Notification struct {
	ID               int64          `json:"id"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	NotificationType string         `json:"notification_type"`
	IsRead           bool           `json:"is_read"`
	CreatedAt        time.Time      `json:"created_at"`
	Data             map[string]any `json:"data,omitempty"`
}

// NotificationPage is one limit/offset page of notifications
type NotificationPage struct {
	Count    int            `json:"count"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
	Results  []Notification `json:"results"`
}

// Client calls the Tabla REST backend
type Client struct {
	http Requester
	log  logger.Logger
}

// New creates a backend client
func New(requester Requester, log logger.Logger) *Client {
	if log == nil {
		log = GetLogger()
	}
	return &Client{http: requester, log: log}
}

// RegisterDeviceToken posts the device token for restaurantID. An empty
// restaurantID falls back to the session's X-Restaurant-ID header.
func (c *Client) RegisterDeviceToken(ctx context.Context, token string, deviceType platform.DeviceType, restaurantID string) (*DeviceToken, error) {
	if token == "" {
		return nil, errors.Newf("device token is empty").
			Component("backend").
			Category(errors.CategoryValidation).
			Context("operation", "register_device_token").
			Build()
	}

	var header http.Header
	if restaurantID != "" {
		header = http.Header{restaurantHeader: []string{restaurantID}}
	}
	resp, err := c.http.RequestWithHeaders(ctx, http.MethodPost, deviceTokensPath, DeviceTokenRequest{
		Token:      token,
		DeviceType: deviceType,
	}, header)
	if err != nil {
		return nil, err
	}

	out := &DeviceToken{Token: token, DeviceType: deviceType}
	if len(resp.Data) > 0 {
		if err := resp.Decode(out); err != nil {
			// the token is registered; an unexpected body shape is not a failure
			c.log.Debug("unexpected device token response", logger.Error(err))
		}
	}
	return out, nil
}

// ListNotifications fetches one page of notifications
func (c *Client) ListNotifications(ctx context.Context, limit, offset int) (*NotificationPage, error) {
	if limit <= 0 || offset < 0 {
		return nil, errors.Newf("invalid page limit=%d offset=%d", limit, offset).
			Component("backend").
			Category(errors.CategoryValidation).
			Context("operation", "list_notifications").
			Build()
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	resp, err := c.http.Request(ctx, http.MethodGet, notificationsPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var page NotificationPage
	if err := resp.Decode(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

// MarkNotificationRead marks one notification as read
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	_, err := c.http.Request(ctx, http.MethodPost, fmt.Sprintf("%s%d/mark-read/", notificationsPath, id), nil)
	return err
}

// IsTokenAlreadyExists reports whether err is the backend's duplicate-token
// rejection: HTTP 400 with a token field mentioning "already exists".
func IsTokenAlreadyExists(err error) bool {
	httpErr, ok := httpclient.AsHTTPError(err)
	if !ok || httpErr.Status != http.StatusBadRequest || httpErr.Body == nil {
		return false
	}

	switch v := httpErr.Body["token"].(type) {
	case string:
		return mentionsAlreadyExists(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && mentionsAlreadyExists(s) {
				return true
			}
		}
	}
	return false
}

func mentionsAlreadyExists(s string) bool {
	return strings.Contains(strings.ToLower(s), "already exists")
}

// GetLogger returns the backend module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("backend")
}
