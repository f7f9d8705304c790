package version

import (
	"runtime/debug"
	"strconv"
)

// Version can be set at link time:
// -ldflags="-X github.com/reproducible-containers/rmitags/cmd/rmitags/version.Version=v0.1.0"
var Version string

const unknown = "(unknown)"

func GetVersion() string {
	if Version != "" {
		return Version
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return unknown
	}
	return fromBuildInfo(bi)
}

// fromBuildInfo prefers the module version ("go install ...@vX.Y.Z"),
// then the VCS revision of a local build, suffixed with ".m" when the
// tree was modified.
func fromBuildInfo(bi *debug.BuildInfo) string {
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	settings := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}
	rev := settings["vcs.revision"]
	if rev == "" {
		return unknown
	}
	if modified, _ := strconv.ParseBool(settings["vcs.modified"]); modified {
		rev += ".m"
	}
	return rev
}
