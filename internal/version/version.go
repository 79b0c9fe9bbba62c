package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/mixma5ter/matrixctl/internal/version.Version=v0.3.0 \
//	                   -X github.com/mixma5ter/matrixctl/internal/version.Commit=abc1234"
//
// Unset values are filled from the VCS stamp in the build info.
var (
	Version = ""
	Commit  = ""
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Modified  bool   `json:"modified"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get resolves the build information for this binary
func Get() Info {
	info, _ := debug.ReadBuildInfo()
	return resolve(Version, Commit, info)
}

// String returns "<version> (commit: <commit>)"
func (i Info) String() string {
	return fmt.Sprintf("%s (commit: %s)", i.Version, i.Commit)
}

// Full returns the full version string including commit
func Full() string {
	return Get().String()
}

func resolve(version, commit string, info *debug.BuildInfo) Info {
	out := Info{
		Version:   version,
		Commit:    commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	var revision, vcsTime string
	if info != nil {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.modified":
				out.Modified = setting.Value == "true"
			case "vcs.time":
				vcsTime = setting.Value
			}
		}
		if out.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			out.Version = info.Main.Version
		}
	}

	if out.Commit == "" && revision != "" {
		out.Commit = revision
		if len(out.Commit) > 7 {
			out.Commit = out.Commit[:7]
		}
		if out.Modified {
			out.Commit += "-dirty"
		}
	}

	if out.Version == "" {
		out.Version = "dev"
		if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
			out.Version = "dev-" + t.UTC().Format("20060102")
		}
	}
	if out.Commit == "" {
		out.Commit = "unknown"
	}
	return out
}
