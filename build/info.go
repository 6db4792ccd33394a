package build

import (
	"fmt"
	"runtime/debug"
)

// Version is overridden at link time: -ldflags "-X peertag/build.Version=v1.2.3".
var Version = "dev"

type Info struct {
	Version    string `json:"version"`
	Path       string `json:"path,omitempty"`
	GoVersion  string `json:"goVersion,omitempty"`
	CommitHash string `json:"commitHash,omitempty"`
	CommitTime string `json:"commitTime,omitempty"`
	Modified   bool   `json:"modified,omitempty"`
}

func (i *Info) String() string {
	commit := i.CommitHash
	if commit == "" {
		commit = "unknown"
	} else if len(commit) > 12 {
		commit = commit[:12]
	}
	if i.Modified {
		commit += "+dirty"
	}

	return fmt.Sprintf("%s (%s, %s)", i.Version, commit, i.GoVersion)
}

func GetBuildInfo() *Info {
	result := &Info{Version: Version}

	if bi, ok := debug.ReadBuildInfo(); ok {
		result.Path = bi.Main.Path
		result.GoVersion = bi.GoVersion

		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				result.CommitHash = s.Value
			case "vcs.time":
				result.CommitTime = s.Value
			case "vcs.modified":
				result.Modified = s.Value == "true"
			}
		}
	}
	return result
}
