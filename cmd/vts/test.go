package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/vts/internal/app"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run protection test drivers against a device under test",
	}
	cmd.AddCommand(newTestKindCmd("ramp", "Run a named pickup/dropoff ramp test"))
	cmd.AddCommand(newTestKindCmd("distance", "Run a named distance (Zone 21) test"))
	cmd.AddCommand(newTestKindCmd("overcurrent", "Run a named IDMT overcurrent curve test"))
	cmd.AddCommand(newTestKindCmd("differential", "Run a named 87 differential test"))
	return cmd
}

func newTestKindCmd(kind, short string) *cobra.Command {
	var flags struct {
		configPath string
		quickStart bool
		verbose    bool
		debug      bool
		noNet      bool
	}

	cmd := &cobra.Command{
		Use:   kind + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return app.RunTest(ctx, app.TestOptions{
				ConfigPath: flags.configPath,
				QuickStart: flags.quickStart,
				Verbose:    flags.verbose,
				Debug:      flags.debug,
				NoNet:      flags.noNet,
				Kind:       kind,
				Name:       args[0],
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
