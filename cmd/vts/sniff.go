package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tturner/vts/internal/app"
	"github.com/tturner/vts/internal/broadcast"
	"github.com/tturner/vts/internal/metrics"
)

func newSniffCmd() *cobra.Command {
	var flags struct {
		configPath string
		quickStart bool
		verbose    bool
		debug      bool
		analyze    string
		pcapOut    string
	}

	cmd := &cobra.Command{
		Use:   "sniff",
		Short: "Sniff GOOSE/SV frames and evaluate trip rules until interrupted",
		Long: `sniff binds the configured interface, decodes GOOSE and SV frames from
a device under test, evaluates the configured trip rules against decoded
GOOSE data points, and raises the process trip signal when a rule fires.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			bus := broadcast.New()
			bus.Subscribe(broadcast.TopicTrip, func(evt broadcast.Event) {
				fmt.Fprintf(os.Stdout, "TRIP: %v\n", evt.Payload)
			})
			sink := metrics.NewSink()
			err := app.RunSniff(ctx, app.SniffOptions{
				ConfigPath:    flags.configPath,
				QuickStart:    flags.quickStart,
				Verbose:       flags.verbose,
				Debug:         flags.debug,
				Bus:           bus,
				AnalyzeStream: flags.analyze,
				PcapOut:       flags.pcapOut,
				Sink:          sink,
			})
			frames := sink.FrameCounters()
			fmt.Fprintf(os.Stdout, "parse errors: %d, trips recorded: %d\n", frames.ParseErrors, len(sink.Samples()))
			return err
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "vts.yaml", "configuration file path")
	cmd.Flags().BoolVar(&flags.quickStart, "quick-start", false, "write a default config at --config if it does not exist")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "debug logging")
	cmd.Flags().StringVar(&flags.analyze, "analyze", "", "also run the live DFT analyzer against this named publisher's stream")
	cmd.Flags().StringVar(&flags.pcapOut, "pcap-out", "", "record every observed frame to this pcap file")

	return cmd
}
