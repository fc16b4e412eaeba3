// Package version holds build-time version information.
package version

// Set via ldflags at build time:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.0 -X .../internal/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "dev"
	Commit  = "unknown"
)

// String returns the human-readable version string
func String() string {
	return Version + " (" + Commit + ")"
}
