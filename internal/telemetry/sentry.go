// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry
package telemetry

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/privacy"
)

var (
	initMu      sync.Mutex
	initialized bool
)

// allowedExtra lists the extra fields kept on outgoing events
var allowedExtra = map[string]bool{
	"error_type": true,
	"component":  true,
}

// Init initializes Sentry when telemetry is enabled and a DSN is configured,
// and installs the error reporter so built errors are captured. It reports
// whether reporting is active.
func Init(settings *conf.Settings, version string) (bool, error) {
	return initWithTransport(settings, version, nil)
}

func initWithTransport(settings *conf.Settings, version string, transport sentry.Transport) (bool, error) {
	log := GetLogger()

	if !settings.Telemetry.Enabled {
		log.Info("error reporting is disabled (opt-in required)")
		return false, nil
	}
	if settings.Telemetry.SentryDSN == "" {
		log.Warn("error reporting enabled but no Sentry DSN configured")
		return false, nil
	}

	initMu.Lock()
	defer initMu.Unlock()

	environment := settings.Telemetry.Environment
	if environment == "" {
		environment = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Telemetry.SentryDSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "", // keep the host name out of events
		Release:          fmt.Sprintf("tabla-push@%s", version),
		Transport:        transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return false, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("platform", settings.Platform.Name)
		scope.SetContext("application", map[string]any{
			"name":    "tabla-push",
			"version": version,
		})
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized = true

	log.Info("error reporting enabled",
		logger.String("environment", environment),
		logger.String("release", version))
	return true, nil
}

// Flush waits for queued events to be delivered and uninstalls the reporter
func Flush(timeout time.Duration) bool {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return true
	}
	errors.SetTelemetryReporter(nil)
	initialized = false
	return sentry.Flush(timeout)
}

// applyPrivacyFilters removes identifying data from an outgoing event
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = privacy.ScrubMessage(event.Message)

	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if !allowedExtra[k] {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}

// GetLogger returns the telemetry module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
