// Package version carries build metadata for the procsnap binary.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags, for example:
// go build -ldflags "-X github.com/spin-stack/procsnap/internal/version.Version=v0.3.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("procsnap %s (commit: %s, built: %s, go: %s, %s/%s)",
		Version, GitCommit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version string.
func Short() string {
	return Version
}
