package load

import (
	"errors"
	"fmt"
	"os"

	"github.com/containerd/containerd/pkg/transfer"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend/backendmanager"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/flagutil"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/imageloader"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load < a.tar",
		Short: "Load an image archive (Docker or OCI) from STDIN",
		Long: `Load an image archive (Docker or OCI) from STDIN

Only the containerd and local backends can load archives.
Use "docker load" for the docker backend.
`,
		Args:                  cobra.NoArgs,
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}

	flags := cmd.Flags()
	flagutil.AddPlatformFlags(flags)
	flags.String("input", "", "Read from tar archive file, instead of STDIN")
	return cmd
}

func action(cmd *cobra.Command, args []string) (retErr error) {
	flags := cmd.Flags()
	plats, err := flagutil.ParsePlatformFlags(flags)
	if err != nil {
		return err
	}
	input, err := flags.GetString("input")
	if err != nil {
		return err
	}
	r := cmd.InOrStdin()
	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	backend, err := backendmanager.NewBackend(cmd)
	if err != nil {
		return err
	}
	defer func() {
		retErr = errors.Join(retErr, backend.Close())
	}()
	transferrer, ok := backend.(transfer.Transferrer)
	if !ok {
		return fmt.Errorf("backend %q cannot load archives", backend.Info().Name)
	}
	ctx := backend.Context(cmd.Context())
	return imageloader.Load(ctx, cmd.ErrOrStderr(), transferrer, r, plats)
}
