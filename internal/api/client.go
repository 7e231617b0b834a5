package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tabladeV/manager.tabla-sub002/internal/backend"
	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
	"github.com/tabladeV/manager.tabla-sub002/internal/httpclient"
)

// Client calls the control API of a running agent
type Client struct {
	http *httpclient.Client
}

// NewClient creates a client for the agent at baseURL
func NewClient(baseURL string, hc *httpclient.Client) *Client {
	if hc == nil {
		hc = httpclient.New(&httpclient.Config{BaseURL: baseURL, UserAgent: "tabla-push-cli"}, conf.Defaults().PlatformInfo())
	}
	return &Client{http: hc}
}

// ClientFromSettings targets the agent.listen address, reaching wildcard
// binds through the loopback interface
func ClientFromSettings(settings *conf.Settings) *Client {
	return NewClient(ControlURL(settings.Agent.Listen), nil)
}

// ControlURL returns the base URL of a control API listening on listen
func ControlURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

// Status returns the agent state
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.call(ctx, http.MethodGet, "api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login reports a dashboard login
func (c *Client) Login(ctx context.Context, req LoginRequest) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.call(ctx, http.MethodPost, "api/v1/session/login", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout reports a dashboard logout
func (c *Client) Logout(ctx context.Context) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.call(ctx, http.MethodPost, "api/v1/session/logout", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SwitchRestaurant reports a restaurant switch
func (c *Client) SwitchRestaurant(ctx context.Context, restaurantID string) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.call(ctx, http.MethodPut, "api/v1/session/restaurant", RestaurantRequest{RestaurantID: restaurantID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetPermission answers the notification permission prompt
func (c *Client) SetPermission(ctx context.Context, permission string) error {
	return c.call(ctx, http.MethodPut, "api/v1/permission", PermissionRequest{Permission: permission}, nil)
}

// Inbox returns one page of notifications
func (c *Client) Inbox(ctx context.Context, limit, offset int) (*backend.NotificationPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "api/v1/inbox"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out backend.NotificationPage
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead marks one notification read
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("api/v1/inbox/%d/read", id), nil, nil)
}

// Close releases idle connections
func (c *Client) Close() {
	c.http.Close()
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.http.Request(ctx, method, path, body)
	if err != nil {
		return describeError(err)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	return resp.Decode(out)
}

// describeError replaces an HTTP failure with the agent's error message
func describeError(err error) error {
	httpErr, ok := httpclient.AsHTTPError(err)
	if !ok {
		return err
	}
	if msg, ok := httpErr.Body["message"].(string); ok && msg != "" {
		if detail, ok := httpErr.Body["error"].(string); ok && detail != "" && detail != msg {
			return fmt.Errorf("agent returned %d: %s: %s", httpErr.Status, msg, detail)
		}
		return fmt.Errorf("agent returned %d: %s", httpErr.Status, msg)
	}
	return err
}
