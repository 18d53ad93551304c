// SPDX-License-Identifier: MIT
//
// Package build manages build metadata embedded into the binary at
// compile time via linker flags: application name, build timestamp,
// Git commit hash, and semantic version. The metadata feeds the CLI
// version output and the startup log line.
package build

import "fmt"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Package-level variables populated by -ldflags during compilation.
// The defaults below keep development builds (plain `go build`) working
// without the release link step.
var (
	buildName    = "spectra"
	buildTime    = "unknown"
	buildCommit  = "unknown"
	buildVersion = "0.0.0-dev"
	buildFlags   = &ldFlags{
		Name:        "spectra",
		Description: "Real-time audio analysis engine",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "0.0.0-dev",
	}
)

// Initialize validates and copies build information from the ldflags
// variables into the buildFlags struct. Must be called early in program
// startup. Returns an error if a build flag was explicitly linked empty.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information. Initialize()
// must be called first for the linked values to be visible.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
