package version

import "fmt"

// These values are set via linker flags, e.g.
// -X github.com/starlingx-staging/ceph-manage-journal/pkg/version.Version=v1.0.0
var (
	Version   = "v0.0.0-dev"
	GitCommit = "HEAD"
)

// FriendlyVersion returns the version string printed by --version.
func FriendlyVersion() string {
	if GitCommit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, GitCommit)
}
