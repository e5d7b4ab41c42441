// Package version carries build metadata set with -ldflags at release time.
package version

import "fmt"

var (
	// Version is the release version, recorded against every batch run.
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String is the one-line banner printed by the version subcommand.
func String() string {
	return fmt.Sprintf("lcmerge %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
