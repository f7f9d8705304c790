package images

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/containerd/log"
	refdocker "github.com/distribution/reference"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend/backendmanager"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/flagutil"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "images",
		Short:                 "List images",
		Aliases:               []string{"list", "ls"},
		Args:                  cobra.NoArgs,
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}
	flagutil.AddPlatformFlags(cmd.Flags())
	return cmd
}

func action(cmd *cobra.Command, args []string) (retErr error) {
	b, err := backendmanager.NewBackend(cmd)
	if err != nil {
		return err
	}
	defer func() {
		retErr = errors.Join(retErr, b.Close())
	}()
	ctx := b.Context(cmd.Context())
	imgs, err := b.Images(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 4, 8, 4, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "REPOSITORY\tTAG\tIMAGE ID\tPLATFORM")
	for _, img := range imgs {
		if err := printImage(tw, img); err != nil {
			log.G(ctx).WithError(err).Warnf("Failed to print image %q", img.Name)
		}
	}
	return nil
}

func printImage(w io.Writer, img backend.Image) error {
	repo, tag := "<none>", "<none>"
	if img.Name != "" {
		ref, err := refdocker.ParseDockerRef(img.Name)
		if err != nil {
			return err
		}
		repo = refdocker.FamiliarName(ref)
		if tagged, ok := ref.(refdocker.Tagged); ok {
			tag = tagged.Tag()
		}
	}
	_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", repo, tag, img.ID, img.Platform)
	return err
}
