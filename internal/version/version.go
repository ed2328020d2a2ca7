package version

import "fmt"

// Populated at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
)

// GetInfo returns a human-readable version string.
func GetInfo() string {
	if Commit == "none" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
