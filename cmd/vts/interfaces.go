package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tturner/vts/internal/netdetect"
)

func newInterfacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interfaces",
		Short: "List network interfaces available for raw-frame I/O",
		RunE: func(cmd *cobra.Command, args []string) error {
			ifaces, err := netdetect.ListInterfaces()
			if err != nil {
				return fmt.Errorf("list interfaces: %w", err)
			}
			for _, iface := range ifaces {
				status := "down"
				if iface.IsUp {
					status = "up"
				}
				fmt.Fprintf(os.Stdout, "%-20s %-6s %s\n", iface.Name, status, iface.DisplayName)
			}
			return nil
		},
	}
}
