package session

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabladeV/manager.tabla-sub002/internal/api"
	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	sessionstore "github.com/tabladeV/manager.tabla-sub002/internal/session"
	"github.com/tabladeV/manager.tabla-sub002/internal/storage"
)

// agentSettings starts a control API over a memory-backed session and
// returns settings pointing at it
func agentSettings(t *testing.T) (*conf.Settings, *sessionstore.Store) {
	t.Helper()
	quiet := logger.NewSlogLogger(nil, logger.LogLevelError, nil)

	sess := sessionstore.New(storage.NewMemoryStore(), nil, quiet)
	t.Cleanup(sess.Close)

	server, err := api.New(conf.Defaults(), api.WithLogger(quiet), api.WithSession(sess))
	require.NoError(t, err)

	ts := httptest.NewServer(server.Echo())
	t.Cleanup(ts.Close)

	settings := conf.Defaults()
	settings.Agent.Listen = strings.TrimPrefix(ts.URL, "http://")
	return settings, sess
}

func run(t *testing.T, settings *conf.Settings, args ...string) (string, error) {
	t.Helper()
	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SilenceUsage = true
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSessionCommands(t *testing.T) {
	settings, sess := agentSettings(t)

	out, err := run(t, settings, "login", "--access-token", "access", "--restaurant", "12")
	require.NoError(t, err)
	assert.Equal(t, "logged in, restaurant 12\n", out)
	assert.Equal(t, sessionstore.Snapshot{IsLoggedIn: true, RestaurantID: "12"}, sess.Snapshot())

	out, err = run(t, settings, "restaurant", "31")
	require.NoError(t, err)
	assert.Equal(t, "logged in, restaurant 31\n", out)

	out, err = run(t, settings, "logout")
	require.NoError(t, err)
	assert.Equal(t, "logged out\n", out)
	assert.False(t, sess.Snapshot().IsLoggedIn)
}

func TestLoginRequiresAccessToken(t *testing.T) {
	settings, _ := agentSettings(t)

	_, err := run(t, settings, "login", "--restaurant", "12")
	require.Error(t, err)
}

func TestUnreachableAgent(t *testing.T) {
	settings := conf.Defaults()
	settings.Agent.Listen = "127.0.0.1:1"

	_, err := run(t, settings, "logout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logout failed")
}
