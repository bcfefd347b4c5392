// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	Long: `List the serial ports present on this machine.

Useful for finding the right --port argument when several USB serial
adapters are connected.

Exit codes:
  0 - At least one port found
  1 - No serial ports found`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("failed to enumerate serial ports: %v", err)
	}

	if len(ports) == 0 {
		fmt.Printf("No serial ports found.\n")
		os.Exit(1)
	}

	fmt.Printf("Available serial ports:\n")
	for _, port := range ports {
		fmt.Printf("  %s\n", port)
	}
	return nil
}
