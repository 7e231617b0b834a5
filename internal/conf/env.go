// env.go - Environment variable configuration and validation for tabla-push
package conf

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "TABLA_DEBUG", validateEnvBool},
		{"platform.name", "TABLA_PLATFORM", validateEnvPlatform},

		{"api.baseurl", "TABLA_API_URL", validateEnvHTTPURL},
		{"api.timeout", "TABLA_API_TIMEOUT", validateEnvDuration},
		{"app.baseurl", "TABLA_APP_URL", validateEnvHTTPURL},

		{"storage.type", "TABLA_STORAGE_TYPE", validateEnvStorageType},
		{"storage.path", "TABLA_STORAGE_PATH", nil},

		{"push.vapidkey", "TABLA_VAPID_KEY", nil},
		{"push.permissionprompt", "TABLA_PERMISSION_PROMPT", validateEnvPermissionPrompt},
		{"push.web.gatewayurl", "TABLA_PUSH_GATEWAY_URL", validateEnvWebSocketURL},
		{"push.native.broker", "TABLA_MQTT_BROKER", nil},
		{"push.native.username", "TABLA_MQTT_USERNAME", nil},
		{"push.native.password", "TABLA_MQTT_PASSWORD", nil},

		{"agent.listen", "TABLA_AGENT_LISTEN", nil},
		{"telemetry.sentrydsn", "TABLA_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars(v)
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvPlatform(value string) error {
	return oneOf(value, validPlatforms)
}

func validateEnvStorageType(value string) error {
	return oneOf(value, validStorageTypes)
}

func validateEnvPermissionPrompt(value string) error {
	return oneOf(value, validPermissionPrompts)
}

func validateEnvHTTPURL(value string) error {
	return validateURLScheme(value, "http", "https")
}

func validateEnvWebSocketURL(value string) error {
	return validateURLScheme(value, "ws", "wss")
}

func validateURLScheme(value string, schemes ...string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !slices.Contains(schemes, u.Scheme) || u.Host == "" {
		return fmt.Errorf("URL must use %s and include a host", strings.Join(schemes, " or "))
	}
	return nil
}

func oneOf(value string, valid []string) error {
	if slices.Contains(valid, value) {
		return nil
	}
	return fmt.Errorf("must be one of: %s", strings.Join(valid, ", "))
}
