// Package platform decides which runtime the agent runs as. Every other
// package asks platform.Info instead of probing the environment itself.
package platform

import (
	"strings"
)

// Name identifies a runtime platform
type Name string

const (
	Web     Name = "web"
	IOS     Name = "ios"
	Android Name = "android"
)

// DeviceType is the value the backend expects in device_type
type DeviceType string

const (
	DeviceWeb     DeviceType = "WEB"
	DeviceIOS     DeviceType = "IOS"
	DeviceAndroid DeviceType = "ANDROID"
)

// Capabilities are the detected web runtime features. They are ignored on native platforms.
type Capabilities struct {
	SecureContext bool
	ServiceWorker bool
	Notifications bool
}

// Info is the resolved platform. It is fixed for the lifetime of the process.
type Info struct {
	Platform     Name
	Native       bool
	Capabilities Capabilities
}

// Detect resolves the platform from an override ("auto", "web", "ios",
// "android") and the build's GOOS. It has no side effects.
func Detect(override, goos string, caps Capabilities) Info {
	var name Name
	switch strings.ToLower(strings.TrimSpace(override)) {
	case "web":
		name = Web
	case "ios":
		name = IOS
	case "android":
		name = Android
	default:
		switch goos {
		case "ios":
			name = IOS
		case "android":
			name = Android
		default:
			name = Web
		}
	}

	info := Info{Platform: name, Native: name != Web}
	if !info.Native {
		info.Capabilities = caps
	}
	return info
}

// DeviceType maps the platform to the backend's device_type tag
func (i Info) DeviceType() DeviceType {
	switch i.Platform {
	case IOS:
		return DeviceIOS
	case Android:
		return DeviceAndroid
	default:
		return DeviceWeb
	}
}

// SupportsWebPush reports whether the web push prerequisites are all present
func (i Info) SupportsWebPush() bool {
	return !i.Native &&
		i.Capabilities.SecureContext &&
		i.Capabilities.ServiceWorker &&
		i.Capabilities.Notifications
}

// String returns the platform name
func (i Info) String() string {
	return string(i.Platform)
}
