// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"zappem.net/pub/debug/xxd"

	"github.com/Thermoquad/braise/pkg/amorce"
)

var (
	readStart string
	readCount uint32
	readOut   string
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read device memory",
	Long: `Read a range of device memory through the bootloader.

Any mapped region can be read: flash, SRAM, CCM, backup SRAM, system
memory and external memory when the device has one. A read must stay
within a single region.

By default the data is hex dumped to stdout; --out writes the raw bytes
to a file instead.

Examples:
  braise read --port /dev/ttyUSB0 --start 0x08000000 --count 256
  braise read --port /dev/ttyUSB0 --start 0x08010000 --count 0x70000 --out app.bin`,
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().StringVar(&readStart, "start", "", "Start address (required)")
	readCmd.Flags().Uint32Var(&readCount, "count", 256, "Number of bytes to read")
	readCmd.Flags().StringVarP(&readOut, "out", "o", "", "Write raw bytes to file instead of hex dumping")
	readCmd.MarkFlagRequired("start")
}

func runRead(cmd *cobra.Command, args []string) error {
	start, err := amorce.ParseAddr(readStart)
	if err != nil {
		return fmt.Errorf("invalid start address %q", readStart)
	}
	if readCount == 0 {
		return fmt.Errorf("--count must be at least 1")
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	client := newShellClient(conn)
	if _, err := client.connect(); err != nil {
		return err
	}

	data, err := client.memRead(start, readCount)
	if err != nil {
		return err
	}

	if readOut != "" {
		if err := os.WriteFile(readOut, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %v", readOut, err)
		}
		fmt.Printf("Read %d bytes from %#x (%s) to %s\n", len(data), start, connInfo, readOut)
	} else {
		xxd.Print(int(start), data)
	}

	return client.exit()
}
