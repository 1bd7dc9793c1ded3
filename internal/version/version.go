// Package version holds the build version of pfls.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X pfls/internal/version.Version=... -X pfls/internal/version.Commit=...".
var (
	Version   = "0.4.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

const shortCommit = 7

// Info is the version with the abbreviated commit when one is known.
// The language server reports it as serverInfo.version.
func Info() string {
	if Commit == "unknown" || len(Commit) <= shortCommit {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit[:shortCommit])
}

// Full is the multi-line text printed by "pfls version".
func Full() string {
	return fmt.Sprintf("pfls version %s\nCommit: %s\nBuilt: %s\nGo: %s", Version, Commit, BuildDate, goVersion())
}

func goVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.GoVersion != "" {
		return bi.GoVersion
	}
	return "unknown"
}
