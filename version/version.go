package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time with -ldflags "-X github.com/kbukum/rediskit/version.Version=v1.2.0".
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Info is the build information of the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	Dirty     bool   `json:"dirty,omitempty"`
}

// Get returns the build information. Fields not set through ldflags fall
// back to the VCS settings the toolchain embeds.
func Get() Info {
	info := Info{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	if len(info.GitCommit) > 7 {
		info.GitCommit = info.GitCommit[:7]
	}
	return info
}

// Short returns "version", "version-commit" or "version-commit-dirty".
func Short() string {
	return Get().String()
}

func (i Info) String() string {
	if i.GitCommit == "" {
		return i.Version
	}
	if i.Dirty {
		return fmt.Sprintf("%s-%s-dirty", i.Version, i.GitCommit)
	}
	return fmt.Sprintf("%s-%s", i.Version, i.GitCommit)
}
