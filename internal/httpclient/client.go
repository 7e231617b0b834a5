// Package httpclient is the HTTP layer every Tabla backend call goes through.
//
// The client picks its transport from the runtime platform: web builds get a
// pooled HTTP/2-capable transport and leave cookies to the caller, native
// builds get an HTTP/1.1 keep-alive transport with a private cookie jar, the
// way the mobile shell's native HTTP bridge behaves. Both are driven through
// the same Do/Get/Post surface and the normalized Request call.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
)

const (
	// DefaultTimeout applies when the request context carries no deadline
	DefaultTimeout = 30 * time.Second

	defaultMaxIdleConns          = 100
	defaultMaxIdleConnsPerHost   = 10
	defaultIdleConnTimeout       = 90 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultDialTimeout           = 30 * time.Second
	defaultDialKeepAlive         = 30 * time.Second

	defaultUserAgent = "tabla-push"
)

// TransportKind names the transport variant in use
type TransportKind string

const (
	TransportWeb    TransportKind = "web"
	TransportNative TransportKind = "native"
)

// Client issues requests against the Tabla backend. Safe for concurrent use.
type Client struct {
	client         *http.Client
	kind           TransportKind
	baseURL        string
	defaultTimeout time.Duration
	userAgent      string
	headers        HeaderSource

	hookMu        sync.RWMutex
	beforeRequest func(*http.Request)
	afterResponse func(*http.Request, *http.Response, error)
}

// Config holds client settings. Zero values fall back to defaults.
type Config struct {
	// BaseURL is prepended to relative paths passed to Request
	BaseURL string

	// DefaultTimeout is applied if the request context has no deadline
	DefaultTimeout time.Duration

	// UserAgent is added to requests that do not set one
	UserAgent string

	// Headers supplies per-request headers (credentials, restaurant)
	Headers HeaderSource

	// Transport replaces the platform transport when set
	Transport http.RoundTripper

	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	ExpectContinueTimeout time.Duration
}

// DefaultConfig returns a Config with production defaults
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:        DefaultTimeout,
		UserAgent:             defaultUserAgent,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
}

// New creates a client for the given platform. A nil cfg uses DefaultConfig;
// the caller's config is never modified.
func New(cfg *Config, info platform.Info) *Client {
	var c Config
	if cfg == nil {
		c = DefaultConfig()
	} else {
		c = *cfg
		applyDefaults(&c)
	}

	kind := TransportWeb
	if info.Native {
		kind = TransportNative
	}

	httpClient := &http.Client{}
	userAgent := c.UserAgent
	switch kind {
	case TransportNative:
		httpClient.Transport = newNativeTransport(&c)
		// publicsuffix keeps the jar from accepting cookies scoped to a whole TLD
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err == nil {
			httpClient.Jar = jar
		}
		userAgent = fmt.Sprintf("%s (%s)", userAgent, info.Platform)
	default:
		httpClient.Transport = newWebTransport(&c)
	}
	if c.Transport != nil {
		httpClient.Transport = c.Transport
	}

	return &Client{
		client:         httpClient,
		kind:           kind,
		baseURL:        c.BaseURL,
		defaultTimeout: c.DefaultTimeout,
		userAgent:      userAgent,
		headers:        c.Headers,
	}
}

func applyDefaults(c *Config) {
	d := DefaultConfig()
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = d.IdleConnTimeout
	}
	if c.TLSHandshakeTimeout == 0 {
		c.TLSHandshakeTimeout = d.TLSHandshakeTimeout
	}
	if c.ResponseHeaderTimeout == 0 {
		c.ResponseHeaderTimeout = d.ResponseHeaderTimeout
	}
	if c.ExpectContinueTimeout == 0 {
		c.ExpectContinueTimeout = d.ExpectContinueTimeout
	}
}

func newDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   defaultDialTimeout,
		KeepAlive: defaultDialKeepAlive,
	}
}

func newWebTransport(c *Config) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           newDialer().DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          c.MaxIdleConns,
		MaxIdleConnsPerHost:   c.MaxIdleConnsPerHost,
		IdleConnTimeout:       c.IdleConnTimeout,
		TLSHandshakeTimeout:   c.TLSHandshakeTimeout,
		ResponseHeaderTimeout: c.ResponseHeaderTimeout,
		ExpectContinueTimeout: c.ExpectContinueTimeout,
	}
}

// newNativeTransport mirrors the mobile HTTP bridge: HTTP/1.1 only, small pool
func newNativeTransport(c *Config) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           newDialer().DialContext,
		ForceAttemptHTTP2:     false,
		TLSNextProto:          map[string]func(string, *tls.Conn) http.RoundTripper{},
		MaxIdleConns:          c.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost:   c.MaxIdleConnsPerHost,
		IdleConnTimeout:       c.IdleConnTimeout,
		TLSHandshakeTimeout:   c.TLSHandshakeTimeout,
		ResponseHeaderTimeout: c.ResponseHeaderTimeout,
		ExpectContinueTimeout: c.ExpectContinueTimeout,
	}
}

// Kind reports which transport the client was built with
func (c *Client) Kind() TransportKind {
	return c.kind
}

// Do executes req. When ctx has no deadline the default timeout applies.
// The caller closes the response body when err is nil.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
		defer cancel()
	}
	req = req.WithContext(ctx)

	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.hookMu.RLock()
	before := c.beforeRequest
	c.hookMu.RUnlock()
	if before != nil {
		before(req)
	}

	resp, err := c.client.Do(req)

	c.hookMu.RLock()
	after := c.afterResponse
	c.hookMu.RUnlock()
	if after != nil {
		after(req, resp, err)
	}

	return resp, err
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// Post performs a POST request. body may be nil, an io.Reader, []byte, a
// string, or any value to be sent as JSON.
func (c *Client) Post(ctx context.Context, url, contentType string, body any) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	reader, isJSON, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create POST request: %w", err)
	}

	switch {
	case contentType != "":
		req.Header.Set("Content-Type", contentType)
	case isJSON:
		req.Header.Set("Content-Type", "application/json")
	}

	return c.Do(ctx, req)
}

// SetBeforeRequestHook sets a function called before each request
func (c *Client) SetBeforeRequestHook(fn func(*http.Request)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.beforeRequest = fn
}

// SetAfterResponseHook sets a function called after each request, with the
// response or the transport error
func (c *Client) SetAfterResponseHook(fn func(*http.Request, *http.Response, error)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.afterResponse = fn
}

// Close releases idle connections
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
