package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
)

// maxBodySize bounds how much of a response body is read
const maxBodySize = 4 << 20

// HeaderSource supplies headers added to every Request call
type HeaderSource interface {
	RequestHeaders() http.Header
}

// HeaderFunc adapts a function to HeaderSource
type HeaderFunc func() http.Header

// RequestHeaders calls f
func (f HeaderFunc) RequestHeaders() http.Header { return f() }

// Response is the transport-independent view of a successful response
type Response struct {
	Status  int
	Headers http.Header
	Data    json.RawMessage
}

// Decode unmarshals the response body into v
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return errors.Newf("empty response body").
			Component("httpclient").
			Category(errors.CategoryHTTP).
			Context("status", r.Status).
			Build()
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return errors.New(fmt.Errorf("failed to decode response: %w", err)).
			Component("httpclient").
			Category(errors.CategoryHTTP).
			Context("status", r.Status).
			Build()
	}
	return nil
}

// HTTPError is returned for every non-2xx response. Body holds the decoded
// JSON object when the server sent one.
type HTTPError struct {
	Status int
	Body   map[string]any
	Raw    string
}

func (e *HTTPError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("http %d %s", e.Status, http.StatusText(e.Status))
	}
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, http.StatusText(e.Status), raw)
}

// AsHTTPError extracts the HTTPError from err, if any
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// Request sends a request to path (absolute, or relative to the configured
// base URL) and normalizes the outcome. Non-2xx responses yield an error
// wrapping *HTTPError; transport failures yield a network, timeout or
// cancellation error.
func (c *Client) Request(ctx context.Context, method, path string, body any) (*Response, error) {
	return c.RequestWithHeaders(ctx, method, path, body, nil)
}

// RequestWithHeaders is Request with extra headers that replace the ones
// from the configured HeaderSource
func (c *Client) RequestWithHeaders(ctx context.Context, method, path string, body any, header http.Header) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	reader, isJSON, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to create request: %w", err)).
			Component("httpclient").
			Category(errors.CategoryValidation).
			Context("method", method).
			Build()
	}
	req.Header.Set("Accept", "application/json")
	if isJSON {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.headers != nil {
		for k, vs := range c.headers.RequestHeaders() {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, transportError(err, method, target, c.kind)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(err, method, target, c.kind)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{Status: resp.StatusCode, Raw: string(data)}
		var obj map[string]any
		if json.Unmarshal(data, &obj) == nil {
			httpErr.Body = obj
		}
		return nil, errors.New(httpErr).
			Component("httpclient").
			Category(errors.CategoryHTTP).
			Context("method", method).
			Context("url", target).
			Context("status", resp.StatusCode).
			Build()
	}

	return &Response{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Data:    json.RawMessage(data),
	}, nil
}

func (c *Client) resolve(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || c.baseURL == "" {
		return path, nil
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.New(fmt.Errorf("invalid base URL: %w", err)).
			Component("httpclient").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", errors.New(fmt.Errorf("invalid request path: %w", err)).
			Component("httpclient").
			Category(errors.CategoryValidation).
			Build()
	}
	return base.ResolveReference(ref).String(), nil
}

func transportError(err error, method, target string, kind TransportKind) error {
	category := errors.CategoryNetwork
	switch {
	case errors.Is(err, context.Canceled):
		category = errors.CategoryCancellation
	case errors.Is(err, context.DeadlineExceeded):
		category = errors.CategoryTimeout
	}
	return errors.New(err).
		Component("httpclient").
		Category(category).
		Context("method", method).
		Context("url", target).
		Context("transport", string(kind)).
		Build()
}

// encodeBody turns body into a reader, reporting whether it was JSON-encoded
func encodeBody(body any) (io.Reader, bool, error) {
	switch v := body.(type) {
	case nil:
		return http.NoBody, false, nil
	case io.Reader:
		return v, false, nil
	case []byte:
		return bytes.NewReader(v), false, nil
	case string:
		return strings.NewReader(v), false, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal body: %w", err)
		}
		return bytes.NewReader(data), true, nil
	}
}
