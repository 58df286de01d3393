package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/vts/internal/app"
	"github.com/tturner/vts/internal/broadcast"
)

func newSequenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequence",
		Short: "Run a named multi-state test sequence",
	}
	cmd.AddCommand(newSequenceRunCmd())
	return cmd
}

func newSequenceRunCmd() *cobra.Command {
	var flags struct {
		configPath string
		quickStart bool
		verbose    bool
		debug      bool
		noNet      bool
	}

	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Run the named sequence against its active streams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			bus := broadcast.New()
			return app.RunSequence(ctx, app.SequenceOptions{
				ConfigPath: flags.configPath,
				QuickStart: flags.quickStart,
				Verbose:    flags.verbose,
				Debug:      flags.debug,
				NoNet:      flags.noNet,
				Name:       args[0],
				Bus:        bus,
			})
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "vts.yaml", "configuration file path")
	cmd.Flags().BoolVar(&flags.quickStart, "quick-start", false, "write a default config at --config if it does not exist")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "debug logging")
	cmd.Flags().BoolVar(&flags.noNet, "no-net", false, "discard frames instead of sending on the wire")

	return cmd
}
