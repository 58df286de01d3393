package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/vts/internal/app"
)

func newPublishCmd() *cobra.Command {
	var flags struct {
		configPath string
		quickStart bool
		verbose    bool
		debug      bool
		noNet      bool
		streams    []string
	}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish configured SV streams until interrupted",
		Long: `publish loads the SV publishers from a configuration file and ticks
them at their configured sample rate, transmitting one Sampled Values
frame per stream per tick, until Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return app.RunPublish(ctx, app.PublishOptions{
				ConfigPath:  flags.configPath,
				QuickStart:  flags.quickStart,
				Verbose:     flags.verbose,
				Debug:       flags.debug,
				NoNet:       flags.noNet,
				StreamNames: flags.streams,
			})
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "vts.yaml", "configuration file path")
	cmd.Flags().BoolVar(&flags.quickStart, "quick-start", false, "write a default config at --config if it does not exist")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "debug logging")
	cmd.Flags().BoolVar(&flags.noNet, "no-net", false, "discard frames instead of sending on the wire")
	cmd.Flags().StringSliceVar(&flags.streams, "stream", nil, "publish only these named streams (default: all)")

	return cmd
}
