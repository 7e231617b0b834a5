package push

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabladeV/manager.tabla-sub002/internal/backend"
	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/httpclient"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
	"github.com/tabladeV/manager.tabla-sub002/internal/session"
	"github.com/tabladeV/manager.tabla-sub002/internal/storage"
)

const (
	apiBase       = "https://api.tabla.test/"
	deviceTokens  = apiBase + "api/v1/device-tokens/"
	deviceCallKey = "POST " + deviceTokens
)

type fixture struct {
	kv        *storage.MemoryStore
	session   *session.Store
	mock      *httpmock.MockTransport
	registrar *TokenRegistrar
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(nil, logger.LogLevelError, nil)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	kv := storage.NewMemoryStore()
	sess := session.New(kv, nil, quietLogger())
	t.Cleanup(sess.Close)

	mt := httpmock.NewMockTransport()
	hc := httpclient.New(&httpclient.Config{BaseURL: apiBase, Transport: mt, Headers: sess}, platform.Info{Platform: platform.Web})
	t.Cleanup(hc.Close)

	api := backend.New(hc, quietLogger())
	return &fixture{
		kv:        kv,
		session:   sess,
		mock:      mt,
		registrar: NewTokenRegistrar(api, sess, platform.DeviceWeb, quietLogger()),
	}
}

func (f *fixture) login(t *testing.T, restaurant string) {
	t.Helper()
	require.NoError(t, f.session.Login(t.Context(), "jwt", "", restaurant))
}

func TestRegisterSamePairOnce(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodPost, deviceTokens, httpmock.NewStringResponder(http.StatusCreated, `{"id":1}`))
	f.login(t, "5")

	assert.Equal(t, ResultRegistered, f.registrar.Register(t.Context(), "tok123"))
	assert.Equal(t, ResultSkipped, f.registrar.Register(t.Context(), "tok123"))

	assert.Equal(t, 1, f.mock.GetCallCountInfo()[deviceCallKey])

	token, restaurant := f.registrar.LastRegistered()
	assert.Equal(t, "tok123", token)
	assert.Equal(t, "5", restaurant)
}

func TestRegisterAgainAfterRestaurantSwitch(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodPost, deviceTokens,
		func(req *http.Request) (*http.Response, error) {
			return httpmock.NewStringResponse(http.StatusCreated, `{"restaurant":"`+req.Header.Get("X-Restaurant-ID")+`"}`), nil
		})
	f.login(t, "5")

	assert.Equal(t, ResultRegistered, f.registrar.Register(t.Context(), "tok123"))
	require.NoError(t, f.session.SwitchRestaurant(t.Context(), "7"))
	assert.Equal(t, ResultRegistered, f.registrar.Register(t.Context(), "tok123"))

	assert.Equal(t, 2, f.mock.GetTotalCallCount())
	_, restaurant := f.registrar.LastRegistered()
	assert.Equal(t, "7", restaurant)
}

// staleSession reports the restaurant the registrar saw before a switch
type staleSession struct{ restaurant string }

func (s staleSession) Snapshot() session.Snapshot {
	return session.Snapshot{IsLoggedIn: true, RestaurantID: s.restaurant}
}

func TestRegisterPostsTheRestaurantItCaches(t *testing.T) {
	f := newFixture(t)
	var posted string
	f.mock.RegisterResponder(http.MethodPost, deviceTokens,
		func(req *http.Request) (*http.Response, error) {
			posted = req.Header.Get("X-Restaurant-ID")
			return httpmock.NewStringResponse(http.StatusCreated, `{}`), nil
		})

	// the store already moved to 7 while the registrar decided for 5
	f.login(t, "7")
	hc := httpclient.New(&httpclient.Config{BaseURL: apiBase, Transport: f.mock, Headers: f.session}, platform.Info{Platform: platform.Web})
	t.Cleanup(hc.Close)
	registrar := NewTokenRegistrar(backend.New(hc, quietLogger()), staleSession{restaurant: "5"}, platform.DeviceWeb, quietLogger())

	assert.Equal(t, ResultRegistered, registrar.Register(t.Context(), "tok123"))
	_, cached := registrar.LastRegistered()
	assert.Equal(t, "5", cached)
	assert.Equal(t, cached, posted, "the cached pair matches the request")
}

func TestAlreadyExistsCountsAsSuccess(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodPost, deviceTokens,
		httpmock.NewStringResponder(http.StatusBadRequest, `{"token":["already exists"]}`))

	// buffered before login
	assert.Equal(t, ResultDeferred, f.registrar.Register(t.Context(), "tok123"))
	assert.Equal(t, "tok123", f.registrar.PendingToken())

	f.login(t, "5")
	assert.Equal(t, ResultDuplicate, f.registrar.RetryPending(t.Context()))
	assert.Empty(t, f.registrar.PendingToken())

	// the pair now counts as registered
	assert.Equal(t, ResultSkipped, f.registrar.Register(t.Context(), "tok123"))
	assert.Equal(t, 1, f.mock.GetTotalCallCount())
}

func TestFailureKeepsTokenPending(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodPost, deviceTokens,
		httpmock.NewStringResponder(http.StatusInternalServerError, `{"detail":"boom"}`))
	f.login(t, "5")

	assert.Equal(t, ResultFailed, f.registrar.Register(t.Context(), "tok123"))
	assert.Equal(t, "tok123", f.registrar.PendingToken())

	f.mock.RegisterResponder(http.MethodPost, deviceTokens, httpmock.NewStringResponder(http.StatusCreated, `{}`))
	assert.Equal(t, ResultRegistered, f.registrar.RetryPending(t.Context()))
	assert.Empty(t, f.registrar.PendingToken())
	assert.Equal(t, ResultNone, f.registrar.RetryPending(t.Context()))
	assert.Equal(t, 2, f.mock.GetTotalCallCount())
}

func TestDeferredUntilRestaurantSelected(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodPost, deviceTokens, httpmock.NewStringResponder(http.StatusCreated, `{}`))
	require.NoError(t, f.kv.Set(storage.KeyIsLoggedIn, "true"))

	assert.Equal(t, ResultDeferred, f.registrar.Register(t.Context(), "tok123"))
	assert.Zero(t, f.mock.GetTotalCallCount())
}

func TestConcurrentRegisterPostsOnce(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodPost, deviceTokens, httpmock.NewStringResponder(http.StatusCreated, `{}`))
	f.login(t, "5")

	var observed sync.Map
	f.registrar.SetObserver(func(r RegistrationResult) {
		n, _ := observed.LoadOrStore(r, new(int))
		*n.(*int)++
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() { f.registrar.Register(context.Background(), "tok123") })
	}
	wg.Wait()

	assert.Equal(t, 1, f.mock.GetTotalCallCount())
	registered, _ := observed.Load(ResultRegistered)
	assert.Equal(t, 1, *registered.(*int))
}

func TestTokenFuture(t *testing.T) {
	t.Run("resolves once", func(t *testing.T) {
		f := NewTokenFuture()
		_, _, ok := f.Result()
		assert.False(t, ok)

		assert.True(t, f.Resolve("tok123"))
		assert.False(t, f.Resolve("other"))
		assert.False(t, f.Reject(errors.NewStd("late")))

		token, err := f.Wait(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "tok123", token)
	})

	t.Run("pending until deadline", func(t *testing.T) {
		f := NewTokenFuture()
		ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
		defer cancel()

		_, err := f.Wait(ctx)
		assert.ErrorIs(t, err, ErrTokenPending)

		// a late arrival is still observable
		f.Resolve("late-token")
		token, err, ok := f.Result()
		assert.True(t, ok)
		require.NoError(t, err)
		assert.Equal(t, "late-token", token)
	})

	t.Run("rejected", func(t *testing.T) {
		f := NewTokenFuture()
		go f.Reject(errors.NewStd("registration error"))

		_, err := f.Wait(t.Context())
		assert.EqualError(t, err, "registration error")
	})
}

func TestPermissions(t *testing.T) {
	kv := storage.NewMemoryStore()
	perms := NewPermissions(kv, PromptGrant, quietLogger())
	assert.Equal(t, PermissionDefault, perms.State())

	var seen []Permission
	cancel := perms.Watch(func(p Permission) { seen = append(seen, p) })
	defer cancel()

	got, err := perms.Request(t.Context())
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, got)

	// an answered prompt is not asked again
	require.NoError(t, perms.Set(PermissionDenied))
	got, err = perms.Request(t.Context())
	require.NoError(t, err)
	assert.Equal(t, PermissionDenied, got)

	require.NoError(t, kv.Delete(storage.KeyNotificationPermission))
	assert.Equal(t, []Permission{PermissionGranted, PermissionDenied, PermissionDefault}, seen)

	assert.Error(t, perms.Set("maybe"))
}

func TestPermissionsDenyPolicy(t *testing.T) {
	perms := NewPermissions(storage.NewMemoryStore(), PromptDeny, quietLogger())

	got, err := perms.Request(t.Context())
	require.NoError(t, err)
	assert.Equal(t, PermissionDenied, got)
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission(" Granted ")
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, p)

	_, err = ParsePermission("prompt")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestPayloadAccessors(t *testing.T) {
	var empty Payload
	assert.Empty(t, empty.Title())
	assert.Empty(t, empty.Body())

	p := Payload{
		Notification: &Notification{Title: "New reservation", Body: "Table 4"},
		Data:         map[string]any{"url": "/reservations/9", "reservation_id": 9.0},
	}
	assert.Equal(t, "New reservation", p.Title())
	assert.Equal(t, "/reservations/9", p.DataString("url"))
	assert.Empty(t, p.DataString("reservation_id"))
	assert.Equal(t, "tok12345…[REDACTED]", RedactToken("tok12345678"))
}
