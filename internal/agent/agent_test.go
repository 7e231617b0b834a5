package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tabladeV/manager.tabla-sub002/internal/api"
	"github.com/tabladeV/manager.tabla-sub002/internal/buildinfo"
	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/notification"
	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
	"github.com/tabladeV/manager.tabla-sub002/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

var testBuild = &buildinfo.Context{Version: "1.0.0-test", BuildDate: "2026-10-01"}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(nil, logger.LogLevelError, nil)
}

func testSettings(platformName string) *conf.Settings {
	settings := conf.Defaults()
	settings.Platform.Name = platformName
	settings.Storage.Type = "memory"
	settings.API.BaseURL = "https://api.tabla.test/"
	settings.App.BaseURL = "https://app.tabla.test"
	settings.Agent.Listen = "127.0.0.1:0"
	settings.Push.Native.Broker = "tcp://127.0.0.1:1883"
	return settings
}

func newAgent(t *testing.T, settings *conf.Settings) (*Agent, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	a, err := New(settings, testBuild, WithTransport(mt), WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, mt
}

func serve(t *testing.T, a *Agent, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	rec := httptest.NewRecorder()
	a.Server().Echo().ServeHTTP(rec, req)
	return rec
}

func TestNewWebAgent(t *testing.T) {
	a, _ := newAgent(t, testSettings("web"))

	assert.Equal(t, platform.Web, a.Platform().Platform)
	assert.False(t, a.Platform().Native)
	assert.Same(t, a.Service(), notification.GetService(), "the agent's service is the process-wide one")

	rec := serve(t, a, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status api.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "web", status.Platform)
	assert.True(t, status.Supported)
	assert.Equal(t, "default", status.Permission)
	assert.Nil(t, status.ServiceWorker, "no worker is registered before login")
}

func TestWebAgentWithoutCapabilitiesSkipsRegistration(t *testing.T) {
	settings := testSettings("web")
	settings.Platform.ServiceWorker = false
	a, mt := newAgent(t, settings)

	ctx, cancel := context.WithCancel(t.Context())
	a.provider.Start(ctx)
	t.Cleanup(func() {
		cancel()
		a.provider.Stop()
	})

	rec := serve(t, a, http.MethodPost, "/api/v1/session/login",
		`{"access_token":"access","refresh_token":"refresh","restaurant_id":"7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_logged_in":true,"restaurant_id":"7"}`, rec.Body.String())

	assert.Never(t, func() bool { return mt.GetTotalCallCount() > 0 }, 200*time.Millisecond, 20*time.Millisecond,
		"unsupported platforms never reach the backend")

	rec = serve(t, a, http.MethodGet, "/api/v1/status", "")
	var status api.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Supported)
	require.NotNil(t, status.Session)
	assert.Equal(t, "7", status.Session.RestaurantID)
}

func TestWebWorkerActionsCountedOnce(t *testing.T) {
	a, _ := newAgent(t, testSettings("web"))

	// mount runs exactly one lifecycle pass
	a.provider.Start(t.Context())
	a.provider.Stop()

	expected := `
# HELP tabla_push_worker_lifecycle_actions_total Service worker lifecycle decisions by action
# TYPE tabla_push_worker_lifecycle_actions_total counter
tabla_push_worker_lifecycle_actions_total{action="none"} 1
`
	require.NoError(t, testutil.GatherAndCompare(a.metrics.Registry(), strings.NewReader(expected),
		"tabla_push_worker_lifecycle_actions_total"))

	a.workers.Sync(t.Context())
	expected = strings.Replace(expected, "} 1", "} 2", 1)
	require.NoError(t, testutil.GatherAndCompare(a.metrics.Registry(), strings.NewReader(expected),
		"tabla_push_worker_lifecycle_actions_total"))
}

func TestNewNativeAgent(t *testing.T) {
	a, _ := newAgent(t, testSettings("android"))

	assert.True(t, a.Platform().Native)
	assert.Equal(t, platform.DeviceAndroid, a.Platform().DeviceType())

	id, ok := a.store.Get(storage.KeyPushDeviceID)
	require.True(t, ok, "native agents pin a device id before connecting")
	assert.NotEmpty(t, id)

	rec := serve(t, a, http.MethodGet, "/api/v1/status", "")
	var status api.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Native)
	assert.Nil(t, status.ServiceWorker, "native agents have no service worker")
	assert.Equal(t, "default", status.Permission)
}

func TestNativeAgentRequiresBroker(t *testing.T) {
	settings := testSettings("ios")
	settings.Push.Native.Broker = ""

	a, err := New(settings, testBuild, WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Nil(t, a)
}

func TestInboxRoutesReachBackend(t *testing.T) {
	a, mt := newAgent(t, testSettings("web"))

	mt.RegisterResponder(http.MethodGet, "https://api.tabla.test/api/v1/notifications/",
		httpmock.NewStringResponder(http.StatusOK,
			`{"count":1,"results":[{"id":3,"title":"New reservation","message":"Table 4 at 20:00","is_read":false}]}`))

	rec := serve(t, a, http.MethodGet, "/api/v1/inbox/unread", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread":1}`, rec.Body.String())
}

func TestRunServesUntilCancelled(t *testing.T) {
	a, _ := newAgent(t, testSettings("web"))

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	var addr string
	require.Eventually(t, func() bool {
		if la := a.Server().Echo().ListenerAddr(); la != nil {
			addr = la.String()
			return true
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, "1.0.0-test", health["version"])

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
}
