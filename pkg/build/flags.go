// SPDX-License-Identifier: MIT
//
// Package build manages build information embedded into the binary at compile
// time using linker flags: application name, build timestamp, Git commit hash,
// and semantic version. Development builds without ldflags get usable
// defaults, so Initialize never fails.
package build

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Package-level variables populated by -ldflags during compilation. Empty
// values (development builds) leave the defaults in place.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "vizbridge",
		Description: "Audio capture bridge and feature extractor for music visualizers",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies any build information provided via ldflags over the
// development defaults. Call early in program startup.
func Initialize() {
	if buildName != "" {
		buildFlags.Name = buildName
	}
	if buildTime != "" {
		buildFlags.Time = buildTime
	}
	if buildCommit != "" {
		buildFlags.Commit = buildCommit
	}
	if buildVersion != "" {
		buildFlags.Version = buildVersion
	}
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
