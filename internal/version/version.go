// Package version reports build metadata for `gitwatch version` and
// /api/status.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X gitwatch/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get combines the ldflags values with what the toolchain embedded. The
// ldflags values win when set.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	if build, ok := debug.ReadBuildInfo(); ok {
		info.fillFrom(build)
	}
	return info
}

func (info *Info) fillFrom(build *debug.BuildInfo) {
	if info.Version == "dev" && build.Main.Version != "" && build.Main.Version != "(devel)" {
		info.Version = strings.TrimPrefix(build.Main.Version, "v")
	}
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = setting.Value
			}
		case "vcs.time":
			if info.BuildDate == "" {
				info.BuildDate = setting.Value
			}
		case "vcs.modified":
			info.Modified = setting.Value == "true"
		}
	}
}

// String is the one-line form printed by `gitwatch version`.
func (info Info) String() string {
	var text strings.Builder
	text.WriteString("gitwatch ")
	text.WriteString(info.Version)
	if commit := info.Commit; commit != "" {
		text.WriteString(" (")
		text.WriteString(commit[:min(len(commit), 12)])
		if info.Modified {
			text.WriteString("+dirty")
		}
		text.WriteString(")")
	}
	if info.BuildDate != "" {
		text.WriteString(" built ")
		text.WriteString(info.BuildDate)
	}
	text.WriteString(" ")
	text.WriteString(info.GoVersion)
	return text.String()
}
