package remove

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/containerd/log"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend/backendmanager"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/flagutil"
	"github.com/reproducible-containers/rmitags/pkg/envutil"
	"github.com/reproducible-containers/rmitags/pkg/remover"
	"github.com/spf13/cobra"
)

const Example = `  # Remove alpine (i.e., alpine:latest)
  rmitags remove alpine

  # Remove several tags; the tag in the argument is ignored
  rmitags remove -t 3.18.2 -t 3.18.3 alpine:edge
`

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove IMAGE",
		Aliases: []string{"rm", "rmi", "remove-image"},
		Short:   "Remove an image, optionally across several tags",
		Long: `Remove an image, optionally across several tags

Images are removed with force, keeping untagged parents.
A missing image is reported as a warning; any other failure stops the
removal of the remaining tags.
`,
		Example:               Example,
		Args:                  cobra.ExactArgs(1),
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}

	flags := cmd.Flags()
	flagutil.AddTagFlags(flags)
	flags.Bool("skip", envutil.Bool("RMITAGS_SKIP", false), envutil.Usage("Do nothing", "RMITAGS_SKIP"))
	flags.Bool("json", false, "Print the outcomes as JSON lines")
	flags.BoolP("quiet", "q", false, "Do not print the outcomes")
	return cmd
}

func action(cmd *cobra.Command, args []string) (retErr error) {
	flags := cmd.Flags()
	skip, err := flags.GetBool("skip")
	if err != nil {
		return err
	}
	if skip {
		log.G(cmd.Context()).Infof("Skipping removal of %q", args[0])
		return nil
	}
	tags, err := flagutil.ParseTagFlags(flags)
	if err != nil {
		return err
	}
	flagJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	quiet, err := flags.GetBool("quiet")
	if err != nil {
		return err
	}

	backend, err := backendmanager.NewBackend(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			retErr = errors.Join(retErr, closeErr)
		}
	}()
	ctx := backend.Context(cmd.Context())
	log.G(ctx).Debugf("Using backend %q", backend.Info().Name)

	outcomes, err := remover.New(backend).RemoveAll(ctx, args[0], tags)
	if gcErr := backend.MaybeGC(ctx); gcErr != nil {
		log.G(ctx).WithError(gcErr).Warn("Failed to do GC")
	}
	if !quiet {
		if printErr := printOutcomes(cmd.OutOrStdout(), outcomes, flagJSON); printErr != nil {
			return errors.Join(err, printErr)
		}
	}
	return err
}

type jsonOutcome struct {
	Status remover.Status `json:"Status"`
	Name   string         `json:"Name"`
	Kind   string         `json:"Kind,omitempty"`
	ID     string         `json:"ID,omitempty"`
	Error  string         `json:"Error,omitempty"`
}

func printOutcomes(w io.Writer, outcomes []remover.Outcome, flagJSON bool) error {
	if flagJSON {
		enc := json.NewEncoder(w)
		for _, o := range outcomes {
			jo := jsonOutcome{
				Status: o.Status,
				Name:   o.Name,
				Kind:   string(o.Item.Kind),
				ID:     o.Item.ID,
			}
			if o.Err != nil {
				jo.Error = o.Err.Error()
			}
			if err := enc.Encode(jo); err != nil {
				return err
			}
		}
		return nil
	}
	for _, o := range outcomes {
		var err error
		switch {
		case o.Status == remover.StatusRemoved && o.Item.ID != "":
			_, err = fmt.Fprintf(w, "%s: %s\n", o.Item.Kind, o.Item.ID)
		case o.Status == remover.StatusRemoved:
			_, err = fmt.Fprintf(w, "Removed: %s\n", o.Name)
		case o.Status == remover.StatusNotFound:
			_, err = fmt.Fprintf(w, "Not found: %s\n", o.Name)
		default:
			_, err = fmt.Fprintf(w, "Failed: %s\n", o.Name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
