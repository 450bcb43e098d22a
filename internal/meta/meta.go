package meta

import (
	"fmt"
	"runtime"
)

// Info describes the build context of the library, for session logs and
// diagnostics.
//
// The fields come from the Go linker's -X flag; consumers vendoring the
// library get zero values plus the runtime information.
type Info struct {
	Version   string
	Build     string
	Platform  string
	GoVersion string
}

// These will be filled in using the linker -X flag
var (
	// Version as an arbitrary string
	Version string

	// Build is the Git sha from when we are building
	Build string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info struct populated with the build information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Build:     Build,
		Platform:  platform,
		GoVersion: runtime.Version(),
	}
}

// String renders the info in a single log-friendly line.
func (i Info) String() string {
	version := i.Version
	if version == "" {
		version = "dev"
	}

	return fmt.Sprintf("%s (%s, %s)", version, i.Build, i.GoVersion)
}
