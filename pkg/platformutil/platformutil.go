package platformutil

import (
	"fmt"

	"github.com/containerd/platforms"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func FormatSlice(ps []ocispec.Platform) string {
	if len(ps) == 0 {
		return "[all]"
	}
	ss := make([]string, len(ps))
	for i := range ps {
		ss[i] = platforms.Format(ps[i])
	}
	return fmt.Sprintf("%v", ss)
}

// MatchComparer returns a matcher for ps. Nil or empty ps matches all platforms.
func MatchComparer(ps []ocispec.Platform) platforms.MatchComparer {
	if len(ps) == 0 {
		return platforms.All
	}
	return platforms.Any(ps...)
}
