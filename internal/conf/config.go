// Package conf loads, validates and persists tabla-push settings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

// PlatformSettings describes the runtime the agent impersonates
type PlatformSettings struct {
	Name          string `mapstructure:"name" yaml:"name"`                     // auto, web, ios or android
	SecureContext bool   `mapstructure:"securecontext" yaml:"securecontext"`   // web only: page served over https or localhost
	ServiceWorker bool   `mapstructure:"serviceworker" yaml:"serviceworker"`   // web only: service worker API available
	Notifications bool   `mapstructure:"notifications" yaml:"notifications"`   // web only: notification API available
}

// AppSettings holds the dashboard location used to build deep links
type AppSettings struct {
	BaseURL string `mapstructure:"baseurl" yaml:"baseurl"`
}

// APISettings configures the Tabla REST backend
type APISettings struct {
	BaseURL   string        `mapstructure:"baseurl" yaml:"baseurl"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent string        `mapstructure:"useragent" yaml:"useragent"`
}

// StorageSettings selects the key/value backend
type StorageSettings struct {
	Type string `mapstructure:"type" yaml:"type"` // memory, file or sqlite
	Path string `mapstructure:"path" yaml:"path"`
}

// WebPushSettings configures the messaging gateway used by the web backend
type WebPushSettings struct {
	GatewayURL       string        `mapstructure:"gatewayurl" yaml:"gatewayurl"`
	HandshakeTimeout time.Duration `mapstructure:"handshaketimeout" yaml:"handshaketimeout"`
}

// NativePushSettings configures the MQTT broker used by the native backend
type NativePushSettings struct {
	Broker       string        `mapstructure:"broker" yaml:"broker"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`         // may reference ${ENV}
	PasswordFile string        `mapstructure:"passwordfile" yaml:"passwordfile"` // read the password from a file instead
	TopicPrefix  string        `mapstructure:"topicprefix" yaml:"topicprefix"`
	QoS          byte          `mapstructure:"qos" yaml:"qos"`
	TokenWait    time.Duration `mapstructure:"tokenwait" yaml:"tokenwait"` // how long GetToken waits for the registration event
}

// PushSettings holds the push subsystem configuration
type PushSettings struct {
	VAPIDKey              string             `mapstructure:"vapidkey" yaml:"vapidkey"`
	ServiceWorkerPath     string             `mapstructure:"serviceworkerpath" yaml:"serviceworkerpath"`
	PermissionPrompt      string             `mapstructure:"permissionprompt" yaml:"permissionprompt"` // grant or deny
	ForegroundTitlePrefix string             `mapstructure:"foregroundtitleprefix" yaml:"foregroundtitleprefix"`
	Web                   WebPushSettings    `mapstructure:"web" yaml:"web"`
	Native                NativePushSettings `mapstructure:"native" yaml:"native"`
}

// DisplaySettings controls where received notifications are shown
type DisplaySettings struct {
	Log  bool     `mapstructure:"log" yaml:"log"`   // also write notifications to the log
	URLs []string `mapstructure:"urls" yaml:"urls"` // shoutrrr service URLs
}

// InboxSettings configures the notification inbox cache
type InboxSettings struct {
	PageSize int           `mapstructure:"pagesize" yaml:"pagesize"`
	CacheTTL time.Duration `mapstructure:"cachettl" yaml:"cachettl"`
}

// AgentSettings configures the long-running agent
type AgentSettings struct {
	Listen        string        `mapstructure:"listen" yaml:"listen"`               // control API address
	FocusInterval time.Duration `mapstructure:"focusinterval" yaml:"focusinterval"` // minimum gap between focus refreshes
}

// TelemetrySettings configures error reporting
type TelemetrySettings struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	SentryDSN     string `mapstructure:"sentrydsn" yaml:"sentrydsn"`
	SentryDSNFile string `mapstructure:"sentrydsnfile" yaml:"sentrydsnfile"`
	Environment   string `mapstructure:"environment" yaml:"environment"`
}

// Settings contains all configuration options for tabla-push
type Settings struct {
	Debug     bool                 `mapstructure:"debug" yaml:"debug"`
	Platform  PlatformSettings     `mapstructure:"platform" yaml:"platform"`
	App       AppSettings          `mapstructure:"app" yaml:"app"`
	API       APISettings          `mapstructure:"api" yaml:"api"`
	Storage   StorageSettings      `mapstructure:"storage" yaml:"storage"`
	Push      PushSettings         `mapstructure:"push" yaml:"push"`
	Display   DisplaySettings      `mapstructure:"display" yaml:"display"`
	Inbox     InboxSettings        `mapstructure:"inbox" yaml:"inbox"`
	Agent     AgentSettings        `mapstructure:"agent" yaml:"agent"`
	Logging   logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file (explicit path or search paths) and
// TABLA_* environment variables into a validated Settings value.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if err := readConfig(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// readConfig reads an explicit file, or searches the default paths.
// A missing config file is not an error; defaults and environment apply.
func readConfig(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(fmt.Errorf("error reading config file: %w", err)).
				Category(errors.CategoryConfiguration).
				Context("operation", "read_config").
				Build()
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range GetDefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}

	GetLogger().Debug("config file loaded", logger.String("path", v.ConfigFileUsed()))
	return nil
}

// GetSettings returns the most recently loaded settings, or nil
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Defaults returns a Settings value populated only from built-in defaults
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	// defaults are static and always decode
	_ = v.Unmarshal(settings)
	return settings
}

// SaveYAMLConfig writes settings to configPath through a temporary file and rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
