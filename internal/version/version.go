package version

import "fmt"

var (
	// Version is the semantic version of the binary, overridden at build time
	// via -ldflags "-X fundwatch/internal/version.Version=...".
	Version = "dev"
	// Commit is the git commit hash, overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp, overridden at build time.
	BuildDate = "unknown"
)

// String renders the build information as a multi-line report.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, BuildDate)
}
