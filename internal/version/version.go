package version

import "fmt"

// Build metadata, set with ldflags in release builds:
// go build -ldflags "-X git.home.luguber.info/inful/assetcompiler/internal/version.Version=v1.2.0".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String is the --version output.
func String() string {
	if GitCommit == "unknown" {
		return Version
	}
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildTime)
}

// UserAgent identifies the tool in outgoing HTTP requests.
func UserAgent() string {
	return "assetcompiler/" + Version
}
