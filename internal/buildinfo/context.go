// Package buildinfo contains build-time metadata kept apart from user configuration
package buildinfo

import "fmt"

// UnknownValue is reported for metadata the build did not inject
const UnknownValue = "unknown"

// BuildInfo provides access to build-time metadata
type BuildInfo interface {
	// GetVersion returns the build version string
	GetVersion() string
	// GetBuildDate returns the build date string
	GetBuildDate() string
}

// Context contains build-time metadata injected at startup via -ldflags
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// String formats the metadata for `tabla-push version`
func (c *Context) String() string {
	return fmt.Sprintf("tabla-push %s (built %s)", c.GetVersion(), c.GetBuildDate())
}
