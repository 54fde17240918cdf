// Package version holds build metadata injected by the linker.
package version

// Populated via -ldflags at build time; see the magefile.
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)
