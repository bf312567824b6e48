// Package version holds build metadata injected at link time.
package version

import "fmt"

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns the full version line.
func String() string {
	return fmt.Sprintf("kbretrieval %s (commit %s, built %s)", Version, Commit, Date)
}
