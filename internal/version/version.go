// Package version reports build information stamped by the linker.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X .../internal/version.Version=v1.2.3" and friends.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the build description printed by "iamgate version" and reported
// by the health probes.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns the stamped values. An unstamped build installed with
// "go install" falls back to the module version and VCS revision.
func GetInfo() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(&info, bi)
	}
	return info
}

func fillFromBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "unknown":
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.Date == "unknown":
			info.Date = s.Value
		}
	}
}

func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	return fmt.Sprintf("iamgate %s (%s) built %s with %s for %s",
		i.Version, commit, i.Date, i.GoVersion, i.Platform)
}

// Short returns just the version number
func (i Info) Short() string {
	return i.Version
}
