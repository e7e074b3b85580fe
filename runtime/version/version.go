// Package version exposes the version string for the currently running
// process.
package version

import (
	"fmt"
	"runtime"
)

// The value of these vars are set through linker options.
var gitCommit = "Local build"
var buildDate = "Moments ago"
var gitTag = "Unknown"

// Version returns the version string of this build.
func Version() string {
	return fmt.Sprintf("aimo/%s/%s. Built at: %s with %s", gitTag, gitCommit, buildDate, runtime.Version())
}
