package info

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend/backendmanager"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/version"
	"github.com/spf13/cobra"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "info",
		Short:                 "Display diagnostic information",
		Args:                  cobra.NoArgs,
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}
	flags := cmd.Flags()
	flags.Bool("json", false, "Display the result as JSON")
	return cmd
}

type Info struct {
	Backend backend.Info `json:"Backend"`
	Version string       `json:"Version"`
}

func action(cmd *cobra.Command, args []string) (retErr error) {
	flags := cmd.Flags()
	flagJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	b, err := backendmanager.NewBackend(cmd)
	if err != nil {
		return err
	}
	defer func() {
		retErr = errors.Join(retErr, b.Close())
	}()
	info := Info{
		Backend: b.Info(),
		Version: version.GetVersion(),
	}

	w := cmd.OutOrStdout()
	if flagJSON {
		b, err := json.MarshalIndent(info, "", "    ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	} else {
		fmt.Fprintf(w, "Backend: %s\n", info.Backend.Name)
		if info.Backend.Address != "" {
			fmt.Fprintf(w, "Address: %s\n", info.Backend.Address)
		}
		fmt.Fprintf(w, "Version: %s\n", info.Version)
	}
	return nil
}
