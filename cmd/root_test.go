package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabladeV/manager.tabla-sub002/internal/buildinfo"
	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
)

func writeConfig(t *testing.T, platform string) (configPath, statePath string) {
	t.Helper()
	dir := t.TempDir()
	statePath = filepath.Join(dir, "state.yaml")
	configPath = filepath.Join(dir, "config.yaml")
	content := "platform:\n  name: " + platform + "\nstorage:\n  type: file\n  path: " + statePath + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath, statePath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := RootCommand(&buildinfo.Context{Version: "2.1.0", BuildDate: "2026-10-01"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionSkipsConfiguration(t *testing.T) {
	out, err := execute(t, "version", "--config", "/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "tabla-push 2.1.0 (built 2026-10-01)")
}

func TestWorkerSyncRegistersForLoggedInUser(t *testing.T) {
	configPath, statePath := writeConfig(t, "web")
	state := "isLogedIn: \"true\"\nrestaurant_id: \"12\"\ntoken: access\nnotification_permission: granted\n"
	require.NoError(t, os.WriteFile(statePath, []byte(state), 0o600))

	out, err := execute(t, "--config", configPath, "worker", "sync")
	require.NoError(t, err)
	assert.Equal(t, "register\n", out)

	out, err = execute(t, "--config", configPath, "worker", "sync")
	require.NoError(t, err)
	assert.Equal(t, "none\n", out, "the registration was persisted")

	out, err = execute(t, "--config", configPath, "worker", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "registered /firebase-messaging-sw.js")
}

func TestPlatformFlagOverridesConfig(t *testing.T) {
	configPath, _ := writeConfig(t, "web")

	_, err := execute(t, "--config", configPath, "--platform", "android", "worker", "sync")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryUnsupported))
}

func TestInvalidPlatformIsRejected(t *testing.T) {
	configPath, _ := writeConfig(t, "web")

	_, err := execute(t, "--config", configPath, "--platform", "windows-phone", "worker", "sync")
	require.Error(t, err)
}
