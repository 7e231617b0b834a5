// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Well-known values shared with the dashboard and the backend.
const (
	DefaultServiceWorkerPath = "/firebase-messaging-sw.js"
	DefaultVAPIDKey          = "BLzFh0JQ2v3b7wqQp8nS6n0dKx9yJ4mZkXo5Rr1TfW8aHc2EgUiVjNlPqOsYt3Gd6MbA7CeLuIwKxZyQv4sR9Hk"
	DefaultTitlePrefix       = "🔔 "
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("platform.name", "auto")
	v.SetDefault("platform.securecontext", true)
	v.SetDefault("platform.serviceworker", true)
	v.SetDefault("platform.notifications", true)

	v.SetDefault("app.baseurl", "http://localhost:5173")

	v.SetDefault("api.baseurl", "http://localhost:8000/")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.useragent", "tabla-push")

	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.path", "tabla-push-state.yaml")

	v.SetDefault("push.vapidkey", DefaultVAPIDKey)
	v.SetDefault("push.serviceworkerpath", DefaultServiceWorkerPath)
	v.SetDefault("push.permissionprompt", "grant")
	v.SetDefault("push.foregroundtitleprefix", DefaultTitlePrefix)

	v.SetDefault("push.web.gatewayurl", "ws://localhost:8000/ws/push/")
	v.SetDefault("push.web.handshaketimeout", 10*time.Second)

	v.SetDefault("push.native.broker", "tcp://localhost:1883")
	v.SetDefault("push.native.username", "")
	v.SetDefault("push.native.password", "")
	v.SetDefault("push.native.passwordfile", "")
	v.SetDefault("push.native.topicprefix", "tabla")
	v.SetDefault("push.native.qos", 1)
	v.SetDefault("push.native.tokenwait", 10*time.Second)

	v.SetDefault("display.log", true)
	v.SetDefault("display.urls", []string{})

	v.SetDefault("inbox.pagesize", 20)
	v.SetDefault("inbox.cachettl", 2*time.Minute)

	v.SetDefault("agent.listen", "127.0.0.1:8787")
	v.SetDefault("agent.focusinterval", 30*time.Second)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/tabla-push.log")
	v.SetDefault("logging.file_output.level", "debug")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.sentrydsn", "")
	v.SetDefault("telemetry.sentrydsnfile", "")
	v.SetDefault("telemetry.environment", "production")
}
