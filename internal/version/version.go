// Package version reports the supersim build.
package version

import (
	"runtime"
	"runtime/debug"
)

// Overridden at build time:
//
//	go build -ldflags "-X supersim/internal/version.Version=0.3.0 -X supersim/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "0.3.0"
	Commit    = ""
	BuildDate = ""
)

// BuildInfo is the machine-readable build description.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
	GoVersion string `json:"goVersion"`
}

// Get returns the build description. Without an ldflags commit, the VCS
// revision stamped by the Go toolchain is used when present.
func Get() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	if info.Commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					info.Commit = s.Value
				case "vcs.time":
					if info.BuildDate == "" {
						info.BuildDate = s.Value
					}
				}
			}
		}
	}
	return info
}

// Info returns the version with the short commit, e.g. "0.3.0 (1a2b3c4)".
func Info() string {
	b := Get()
	if len(b.Commit) >= 7 {
		return b.Version + " (" + b.Commit[:7] + ")"
	}
	return b.Version
}

// Full returns the multi-line description printed by `supersim version`.
func Full() string {
	b := Get()
	commit, built := b.Commit, b.BuildDate
	if commit == "" {
		commit = "unknown"
	}
	if built == "" {
		built = "unknown"
	}
	return "supersim " + b.Version + "\n" +
		"Commit: " + commit + "\n" +
		"Built: " + built + "\n" +
		"Go: " + b.GoVersion
}
