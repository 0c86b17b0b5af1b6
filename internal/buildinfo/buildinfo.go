// Package buildinfo holds build-time version metadata injected via ldflags.
package buildinfo

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)
