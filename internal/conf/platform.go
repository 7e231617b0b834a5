package conf

import (
	"runtime"

	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
)

// PlatformInfo resolves the platform the agent runs as from platform.name
// and the build's GOOS.
func (s *Settings) PlatformInfo() platform.Info {
	return platform.Detect(s.Platform.Name, runtime.GOOS, platform.Capabilities{
		SecureContext: s.Platform.SecureContext,
		ServiceWorker: s.Platform.ServiceWorker,
		Notifications: s.Platform.Notifications,
	})
}
