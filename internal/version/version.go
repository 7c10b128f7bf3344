// Package version carries build identification for both binaries.
package version

import "runtime/debug"

// Version is stamped at build time via
// -ldflags "-X github.com/chmouel/nextmeetingd/internal/version.Version=v1.2.3".
var Version = ""

// String returns the stamped version, falling back to module build
// info for plain `go install` builds.
func String() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}
