package conf

import (
	"fmt"

	"github.com/tabladeV/manager.tabla-sub002/internal/secrets"
)

// resolveSecrets replaces credential references (${ENV} and secret files)
// with their values
func resolveSecrets(s *Settings) error {
	var err error

	native := &s.Push.Native
	if native.Username, err = secrets.ExpandString(native.Username); err != nil {
		return fmt.Errorf("push.native.username: %w", err)
	}
	if native.Password, err = secrets.Resolve(native.PasswordFile, native.Password); err != nil {
		return fmt.Errorf("push.native.password: %w", err)
	}

	if s.Telemetry.SentryDSN, err = secrets.Resolve(s.Telemetry.SentryDSNFile, s.Telemetry.SentryDSN); err != nil {
		return fmt.Errorf("telemetry.sentrydsn: %w", err)
	}

	if s.Display.URLs, err = secrets.ResolveAll(s.Display.URLs); err != nil {
		return fmt.Errorf("display.urls: %w", err)
	}

	return nil
}
