package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
)

func TestPlatformInfo(t *testing.T) {
	settings := Defaults()

	settings.Platform.Name = "web"
	info := settings.PlatformInfo()
	assert.Equal(t, platform.Web, info.Platform)
	assert.True(t, info.SupportsWebPush())

	settings.Platform.ServiceWorker = false
	assert.False(t, settings.PlatformInfo().SupportsWebPush())

	settings.Platform.Name = "ios"
	info = settings.PlatformInfo()
	assert.Equal(t, platform.IOS, info.Platform)
	assert.True(t, info.Native)
	assert.Equal(t, platform.DeviceIOS, info.DeviceType())
}
