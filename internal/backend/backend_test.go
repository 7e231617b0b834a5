package backend

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/httpclient"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
)

const baseURL = "https://api.tabla.test/"

func newMockedClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	hc := httpclient.New(&httpclient.Config{
		BaseURL:   baseURL,
		Transport: mt,
		Headers: httpclient.HeaderFunc(func() http.Header {
			h := http.Header{}
			h.Set("Authorization", "Bearer jwt")
			h.Set("X-Restaurant-ID", "5")
			return h
		}),
	}, platform.Info{Platform: platform.Web})
	t.Cleanup(hc.Close)
	return New(hc, logger.NewSlogLogger(nil, logger.LogLevelError, nil)), mt
}

func TestRegisterDeviceToken(t *testing.T) {
	client, mt := newMockedClient(t)

	mt.RegisterResponder(http.MethodPost, baseURL+"api/v1/device-tokens/",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer jwt", req.Header.Get("Authorization"))
			assert.Equal(t, "5", req.Header.Get("X-Restaurant-ID"))

			var body DeviceTokenRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			assert.Equal(t, "tok123", body.Token)
			assert.Equal(t, platform.DeviceWeb, body.DeviceType)

			return httpmock.NewStringResponse(http.StatusCreated,
				`{"id":9,"token":"tok123","device_type":"WEB","created_at":"2026-10-01T10:00:00Z"}`), nil
		})

	got, err := client.RegisterDeviceToken(t.Context(), "tok123", platform.DeviceWeb, "")
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.ID)
	assert.Equal(t, platform.DeviceWeb, got.DeviceType)
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestRegisterDeviceTokenExplicitRestaurant(t *testing.T) {
	client, mt := newMockedClient(t)

	mt.RegisterResponder(http.MethodPost, baseURL+"api/v1/device-tokens/",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, []string{"7"}, req.Header.Values("X-Restaurant-ID"), "explicit restaurant replaces the session header")
			assert.Equal(t, "Bearer jwt", req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(http.StatusCreated, `{}`), nil
		})

	_, err := client.RegisterDeviceToken(t.Context(), "tok123", platform.DeviceWeb, "7")
	require.NoError(t, err)
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestRegisterDeviceTokenRejectsEmptyToken(t *testing.T) {
	client, mt := newMockedClient(t)

	_, err := client.RegisterDeviceToken(t.Context(), "", platform.DeviceIOS, "5")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Zero(t, mt.GetTotalCallCount())
}

func TestRegisterDeviceTokenDuplicate(t *testing.T) {
	client, mt := newMockedClient(t)

	mt.RegisterResponder(http.MethodPost, baseURL+"api/v1/device-tokens/",
		httpmock.NewStringResponder(http.StatusBadRequest, `{"token":["device token with this token already exists."]}`))

	_, err := client.RegisterDeviceToken(t.Context(), "tok123", platform.DeviceAndroid, "5")
	require.Error(t, err)
	assert.True(t, IsTokenAlreadyExists(err))
}

func TestIsTokenAlreadyExists(t *testing.T) {
	wrap := func(status int, raw string) error {
		httpErr := &httpclient.HTTPError{Status: status, Raw: raw}
		var body map[string]any
		if json.Unmarshal([]byte(raw), &body) == nil {
			httpErr.Body = body
		}
		return errors.New(httpErr).Category(errors.CategoryHTTP).Build()
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"list form", wrap(400, `{"token":["Already exists"]}`), true},
		{"string form", wrap(400, `{"token":"this token already exists"}`), true},
		{"other token error", wrap(400, `{"token":["This field is required."]}`), false},
		{"other field", wrap(400, `{"device_type":["already exists"]}`), false},
		{"wrong status", wrap(409, `{"token":["already exists"]}`), false},
		{"non json body", wrap(400, `already exists`), false},
		{"not an http error", errors.NewStd("already exists"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTokenAlreadyExists(tt.err))
		})
	}
}

func TestListNotifications(t *testing.T) {
	client, mt := newMockedClient(t)

	mt.RegisterResponder(http.MethodGet, baseURL+"api/v1/notifications/?limit=20&offset=40",
		httpmock.NewStringResponder(http.StatusOK, `{
			"count": 41,
			"next": null,
			"previous": "https://api.tabla.test/api/v1/notifications/?limit=20&offset=20",
			"results": [
				{"id": 3, "title": "New reservation", "message": "Table for 4 at 20:00",
				 "notification_type": "reservation", "is_read": false,
				 "created_at": "2026-10-01T18:00:00Z", "data": {"reservation_id": 77}}
			]
		}`))

	page, err := client.ListNotifications(t.Context(), 20, 40)
	require.NoError(t, err)

	assert.Equal(t, 41, page.Count)
	assert.Nil(t, page.Next)
	require.NotNil(t, page.Previous)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "New reservation", page.Results[0].Title)
	assert.False(t, page.Results[0].IsRead)
	assert.InDelta(t, 77, page.Results[0].Data["reservation_id"], 0)

	_, err = client.ListNotifications(t.Context(), 0, 0)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestMarkNotificationRead(t *testing.T) {
	client, mt := newMockedClient(t)

	mt.RegisterResponder(http.MethodPost, baseURL+"api/v1/notifications/3/mark-read/",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`))
	mt.RegisterResponder(http.MethodPost, baseURL+"api/v1/notifications/4/mark-read/",
		httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"Not found."}`))

	require.NoError(t, client.MarkNotificationRead(t.Context(), 3))

	err := client.MarkNotificationRead(t.Context(), 4)
	httpErr, ok := httpclient.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)

	info := mt.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+baseURL+"api/v1/notifications/3/mark-read/"])
}
