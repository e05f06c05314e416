// Package version holds build metadata, overridden at link time with
// -ldflags "-X github.com/charlie0129/slmcal/pkg/version.Version=...".
package version

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
)

// Info is the JSON form served by the daemon.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

func Get() Info {
	return Info{Version: Version, GitCommit: GitCommit}
}
