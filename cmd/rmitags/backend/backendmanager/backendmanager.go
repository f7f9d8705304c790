package backendmanager

import (
	"errors"
	"fmt"

	"github.com/containerd/log"
	"github.com/containerd/platforms"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend/containerdbackend"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend/dockerbackend"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend/localbackend"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/flagutil"
	"github.com/reproducible-containers/rmitags/pkg/envutil"
	"github.com/reproducible-containers/rmitags/pkg/platformutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func AddFlags(flags *pflag.FlagSet) {
	dockerbackend.AddFlags(flags)
	containerdbackend.AddFlags(flags)
	localbackend.AddFlags(flags)
	flags.String("backend", envutil.String("RMITAGS_BACKEND", "auto"),
		envutil.Usage("backend (auto|docker|containerd|local)", "RMITAGS_BACKEND"))
}

func NewBackend(cmd *cobra.Command) (backend.Backend, error) {
	ctx := cmd.Context()
	flags := cmd.Flags()
	b, err := flags.GetString("backend")
	if err != nil {
		return nil, err
	}
	platMC, err := platformMatcher(flags)
	if err != nil {
		return nil, err
	}
	switch b {
	case "auto":
		// The local cache is only used when asked for.
		db, dErr := dockerbackend.New(cmd)
		if dErr == nil {
			log.G(ctx).Debug("auto backend: choosing \"docker\"")
			return db, nil
		}
		log.G(ctx).WithError(dErr).Debug("auto backend: failed to choose \"docker\", trying \"containerd\"")
		cb, cErr := containerdbackend.New(cmd, platMC)
		if cErr == nil {
			log.G(ctx).Debug("auto backend: choosing \"containerd\"")
			return cb, nil
		}
		return nil, fmt.Errorf("no backend available (use --backend=local for the local cache): %w", errors.Join(dErr, cErr))
	case dockerbackend.Name:
		return dockerbackend.New(cmd)
	case containerdbackend.Name:
		return containerdbackend.New(cmd, platMC)
	case localbackend.Name:
		return localbackend.New(cmd, platMC)
	default:
		return nil, fmt.Errorf("unknown backend %q (valid values are \"auto\", \"docker\", \"containerd\", and \"local\")", b)
	}
}

// platformMatcher honors --platform/--all-platforms on commands that define them.
func platformMatcher(flags *pflag.FlagSet) (platforms.MatchComparer, error) {
	if flags.Lookup("platform") == nil {
		return platforms.All, nil
	}
	plats, err := flagutil.ParsePlatformFlags(flags)
	if err != nil {
		return nil, err
	}
	return platformutil.MatchComparer(plats), nil
}
