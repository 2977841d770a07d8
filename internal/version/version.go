// Package version carries build metadata reported by /healthz and the
// startup log.
package version

// Set at build time, e.g.
// go build -ldflags "-X github.com/pysugar/creator-insights/internal/version.Version=v0.3.0"
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)
