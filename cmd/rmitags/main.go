package main

import (
	_ "crypto/sha256"
	"fmt"

	"github.com/containerd/log"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend/backendmanager"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/commands/images"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/commands/info"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/commands/load"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/commands/remove"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/version"
	"github.com/reproducible-containers/rmitags/pkg/envutil"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.L.Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rmitags",
		Short:         "Remove container images across tags",
		Example:       remove.Example,
		Version:       version.GetVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.Bool("debug", envutil.Bool("DEBUG", false), envutil.Usage("debug mode", "DEBUG"))
	flags.String("log-format", envutil.String("RMITAGS_LOG_FORMAT", string(log.TextFormat)),
		envutil.Usage("log format (text|json)", "RMITAGS_LOG_FORMAT"))
	backendmanager.AddFlags(flags)

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if debug, _ := flags.GetBool("debug"); debug {
			if err := log.SetLevel(log.DebugLevel.String()); err != nil {
				log.L.WithError(err).Warn("Failed to enable debug logs")
			}
		}
		logFormat, err := flags.GetString("log-format")
		if err != nil {
			return err
		}
		switch f := log.OutputFormat(logFormat); f {
		case log.TextFormat, log.JSONFormat:
			return log.SetFormat(f)
		default:
			return fmt.Errorf("unknown log format %q (valid values are %q and %q)", logFormat, log.TextFormat, log.JSONFormat)
		}
	}

	cmd.AddCommand(
		remove.NewCommand(),
		images.NewCommand(),
		info.NewCommand(),
		load.NewCommand(),
	)
	return cmd
}
