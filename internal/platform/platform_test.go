package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	full := Capabilities{SecureContext: true, ServiceWorker: true, Notifications: true}

	tests := []struct {
		name       string
		override   string
		goos       string
		wantName   Name
		wantNative bool
		wantDevice DeviceType
	}{
		{"auto on linux is web", "auto", "linux", Web, false, DeviceWeb},
		{"auto on android", "auto", "android", Android, true, DeviceAndroid},
		{"auto on ios", "", "ios", IOS, true, DeviceIOS},
		{"override wins over goos", "ios", "linux", IOS, true, DeviceIOS},
		{"override is case-insensitive", " Android ", "darwin", Android, true, DeviceAndroid},
		{"web override on android", "web", "android", Web, false, DeviceWeb},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Detect(tt.override, tt.goos, full)
			assert.Equal(t, tt.wantName, info.Platform)
			assert.Equal(t, tt.wantNative, info.Native)
			assert.Equal(t, tt.wantDevice, info.DeviceType())
		})
	}
}

func TestSupportsWebPush(t *testing.T) {
	assert.True(t, Detect("web", "linux", Capabilities{SecureContext: true, ServiceWorker: true, Notifications: true}).SupportsWebPush())
	assert.False(t, Detect("web", "linux", Capabilities{SecureContext: false, ServiceWorker: true, Notifications: true}).SupportsWebPush())
	assert.False(t, Detect("web", "linux", Capabilities{SecureContext: true, ServiceWorker: false, Notifications: true}).SupportsWebPush())
	assert.False(t, Detect("android", "linux", Capabilities{SecureContext: true, ServiceWorker: true, Notifications: true}).SupportsWebPush(),
		"native platforms never use web push")
}
