// Package buildinfo holds build-time metadata injected through -ldflags,
// kept apart from user configuration.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/tphakala/automarker/internal/buildinfo.version=..."
var (
	version   string
	buildDate string
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	version   string
	buildDate string
}

// NewContext returns a Context for the given values.
func NewContext(version, buildDate string) *Context {
	return &Context{version: version, buildDate: buildDate}
}

// Current returns the metadata linked into this binary. Without ldflags
// the module version recorded by the go tool is used when available.
func Current() *Context {
	v := version
	if v == "" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
	}
	return NewContext(v, buildDate)
}

// Version returns the release version.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build timestamp.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// Release is the identifier reported to error telemetry.
func (c *Context) Release() string {
	return "automarker@" + c.Version()
}

// String renders the metadata for the version command.
func (c *Context) String() string {
	return fmt.Sprintf("automarker %s (built %s, %s %s/%s)",
		c.Version(), c.BuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
