// Package api provides the local control API of the tabla-push agent. The
// dashboard shell and the CLI use it to report session changes, answer the
// permission prompt and read the notification inbox.
package api

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the control API server configuration.
type Config struct {
	// Server binding
	Host string // Host to bind to (empty for all interfaces)
	Port string // Port to listen on

	// Security settings
	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Limits
	BodyLimit string // Maximum request body size (e.g., "64K")

	Debug bool
}

// DefaultConfig returns a Config bound to the loopback interface.
func DefaultConfig() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            "8787",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       "64K",
	}
}

// ConfigFromSettings creates a Config from the application settings.
// The dashboard origin (app.baseurl) is the only CORS origin when set.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()

	host, port, err := net.SplitHostPort(settings.Agent.Listen)
	if err != nil {
		GetLogger().Warn("invalid agent listen address",
			logger.String("listen", settings.Agent.Listen),
			logger.Error(err))
		cfg.Host, cfg.Port = settings.Agent.Listen, ""
	} else {
		cfg.Host, cfg.Port = host, port
	}

	if origin := originOf(settings.App.BaseURL); origin != "" {
		cfg.AllowedOrigins = []string{origin}
	}

	cfg.Debug = settings.Debug
	return cfg
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	return nil
}

// Address returns the full address string for the server to listen on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Control API config: address=%s, origins=%v, debug=%v",
		c.Address(), c.AllowedOrigins, c.Debug)
}
