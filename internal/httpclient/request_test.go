package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
)

func staticHeaders(token, restaurant string) HeaderSource {
	return HeaderFunc(func() http.Header {
		h := http.Header{}
		h.Set("Authorization", "Bearer "+token)
		h.Set("X-Restaurant-ID", restaurant)
		return h
	})
}

func TestRequestNormalizesSuccess(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/device-tokens/", r.URL.Path)
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
		assert.Equal(t, "5", r.Header.Get("X-Restaurant-ID"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tok123", body["token"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1,"token":"tok123"}`))
	})

	client := newTestClientWithConfig(t, &Config{BaseURL: server.URL + "/", Headers: staticHeaders("jwt", "5")})

	resp, err := client.Request(t.Context(), http.MethodPost, "api/v1/device-tokens/", map[string]string{"token": "tok123"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "application/json", resp.Headers.Get("Content-Type"))

	var out struct {
		ID    int    `json:"id"`
		Token string `json:"token"`
	}
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, 1, out.ID)
}

func TestRequestNormalizesHTTPError(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"token":["device token with this token already exists."]}`))
	})

	client := newTestClientWithConfig(t, &Config{BaseURL: server.URL})

	_, err := client.Request(t.Context(), http.MethodPost, "/api/v1/device-tokens/", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))

	httpErr, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, []any{"device token with this token already exists."}, httpErr.Body["token"])
	assert.Contains(t, httpErr.Error(), "http 400")
}

func TestRequestNonJSONErrorBody(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	client := newTestClient(t)

	_, err := client.Request(t.Context(), http.MethodGet, server.URL, nil)
	httpErr, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Nil(t, httpErr.Body)
	assert.Equal(t, "upstream down\n", httpErr.Raw)
}

func TestRequestTransportErrors(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	client := newTestClient(t)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Request(ctx, http.MethodGet, server.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))
	_, isHTTP := AsHTTPError(err)
	assert.False(t, isHTTP)

	_, err = client.Request(t.Context(), http.MethodGet, "http://127.0.0.1:1/unreachable", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}

func TestNativeTransportKeepsCookies(t *testing.T) {
	var sawCookie bool
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("csrftoken"); err == nil {
			sawCookie = true
		}
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "abc", Path: "/"})
		_, _ = io.WriteString(w, `{}`)
	})

	client := New(&Config{BaseURL: server.URL}, nativeInfo)
	t.Cleanup(client.Close)
	_, ok := client.client.Jar.(*cookiejar.Jar)
	require.True(t, ok)

	_, err := client.Request(t.Context(), http.MethodGet, "api/v1/notifications/", nil)
	require.NoError(t, err)
	_, err = client.Request(t.Context(), http.MethodGet, "api/v1/notifications/", nil)
	require.NoError(t, err)

	assert.True(t, sawCookie, "second request carries the cookie set by the first")
}

func TestResolve(t *testing.T) {
	client := New(&Config{BaseURL: "https://api.tabla.ma/"}, webInfo)

	got, err := client.resolve("api/v1/notifications/?limit=20&offset=0")
	require.NoError(t, err)
	assert.Equal(t, "https://api.tabla.ma/api/v1/notifications/?limit=20&offset=0", got)

	got, err = client.resolve("/api/v1/device-tokens/")
	require.NoError(t, err)
	assert.Equal(t, "https://api.tabla.ma/api/v1/device-tokens/", got)

	got, err = client.resolve("http://other.example/x")
	require.NoError(t, err)
	assert.Equal(t, "http://other.example/x", got)
}
