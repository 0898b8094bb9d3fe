// Package version reports what build of Wayfarer is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Stamped by the linker, e.g.
//
//	-ldflags "-X github.com/soyeahso/wayfarer/internal/version.Version=1.0.0"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Current returns the build description. When the linker left Commit and
// Date unset, the VCS stamp recorded by the go tool is used instead.
func Current() Build {
	b := Build{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && b.Commit == "unknown":
				b.Commit = s.Value
			case s.Key == "vcs.time" && b.Date == "unknown":
				b.Date = s.Value
			}
		}
	}
	return b
}

// Info is the one-line form printed by `wayfarer version`.
func Info() string {
	b := Current()
	return fmt.Sprintf("wayfarer %s (commit: %s, built: %s, %s)", b.Version, short(b.Commit), b.Date, b.Platform)
}

// UserAgent is sent on outbound HTTP requests to providers and tool APIs.
func UserAgent() string {
	return "wayfarer/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
