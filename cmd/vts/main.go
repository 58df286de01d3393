package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vts",
		Short: "IEC 61850 virtual test set for protection relay testing",
		Long: `vts publishes Sampled Values and GOOSE onto a bound Ethernet
interface, sniffs GOOSE/SV from a device under test, and runs ramp,
distance, overcurrent, and differential protection test sequences against
it, measuring trip latency.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newInterfacesCmd())
	rootCmd.AddCommand(newPublishCmd())
	rootCmd.AddCommand(newSniffCmd())
	rootCmd.AddCommand(newSequenceCmd())
	rootCmd.AddCommand(newTestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", present(err))
		os.Exit(1)
	}
}
