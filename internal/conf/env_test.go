package conf

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvValidators(t *testing.T) {
	tests := []struct {
		name     string
		validate func(string) error
		value    string
		wantErr  bool
	}{
		{"bool ok", validateEnvBool, "true", false},
		{"bool bad", validateEnvBool, "yes please", true},
		{"duration ok", validateEnvDuration, "15s", false},
		{"duration negative", validateEnvDuration, "-1s", true},
		{"platform ok", validateEnvPlatform, "android", false},
		{"platform bad", validateEnvPlatform, "blackberry", true},
		{"storage ok", validateEnvStorageType, "sqlite", false},
		{"storage bad", validateEnvStorageType, "redis", true},
		{"prompt ok", validateEnvPermissionPrompt, "deny", false},
		{"http url ok", validateEnvHTTPURL, "https://api.tabla.example", false},
		{"http url wrong scheme", validateEnvHTTPURL, "ftp://api.tabla.example", true},
		{"http url no host", validateEnvHTTPURL, "https://", true},
		{"ws url ok", validateEnvWebSocketURL, "wss://push.tabla.example/ws", false},
		{"ws url http", validateEnvWebSocketURL, "https://push.tabla.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBindEnvVarsReportsInvalidValues(t *testing.T) {
	t.Setenv("TABLA_STORAGE_TYPE", "redis")
	t.Setenv("TABLA_DEBUG", "true")

	v := viper.New()
	err := configureEnvironmentVariables(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TABLA_STORAGE_TYPE")
	assert.NotContains(t, err.Error(), "TABLA_DEBUG")

	assert.True(t, v.GetBool("debug"))
}
