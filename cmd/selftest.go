// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/braise/pkg/amorce"
)

var selftestTimeout int

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run a read-only check sequence against the bootloader",
	Long: `Run a fixed sequence of read-only shell commands and report which
answer correctly.

The sequence covers the identity and status surface of the shell:
version, cid, get-rdp-level, read-sector-status, get-otp and a small
mem-read from the base of flash. Nothing is written, so the check is
safe on a production device.

Attach right after a reset so the greeting is still on the wire.

Exit codes:
  0 - Every check passed
  1 - At least one check failed
  2 - Connection error`,
	RunE: runSelftest,
}

func init() {
	rootCmd.AddCommand(selftestCmd)
	selftestCmd.Flags().IntVar(&selftestTimeout, "timeout", 5, "Timeout in seconds to reach the prompt")
}

func runSelftest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Braise - Bootloader Self Test\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	client := newShellClient(conn)
	bannerChan := make(chan error, 1)
	go func() {
		_, err := client.connect()
		bannerChan <- err
	}()
	select {
	case err := <-bannerChan:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection failed: %v\n", err)
			os.Exit(2)
		}
	case <-time.After(time.Duration(selftestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No greeting within %d seconds\n", selftestTimeout)
		fmt.Fprintf(os.Stderr, "Is the device in bootloader mode?\n")
		os.Exit(2)
	}

	checks := []struct {
		name string
		run  func(*shellClient) error
	}{
		{"version", func(c *shellClient) error {
			_, err := c.command(amorce.CmdVersion)
			return err
		}},
		{"cid", func(c *shellClient) error {
			_, err := c.command(amorce.CmdCID)
			return err
		}},
		{"rdp level", func(c *shellClient) error {
			_, err := c.command(amorce.CmdGetRDPLevel)
			return err
		}},
		{"sector status", func(c *shellClient) error {
			_, err := c.command(amorce.CmdReadSectorStatus)
			return err
		}},
		{"otp block 0", func(c *shellClient) error {
			_, err := c.command(fmt.Sprintf("%s %s=0", amorce.CmdGetOTP, amorce.ParBlock))
			return err
		}},
		{"flash read", func(c *shellClient) error {
			_, err := c.memRead(amorce.FlashBase, 16)
			return err
		}},
	}

	passed := 0
	for _, check := range checks {
		start := time.Now()
		err := check.run(client)
		elapsed := time.Since(start).Round(time.Millisecond)

		if err == nil {
			passed++
			fmt.Printf("  %-16s PASS  (%v)\n", check.name, elapsed)
			continue
		}

		var devErr *deviceError
		if errors.As(err, &devErr) {
			fmt.Printf("  %-16s FAIL  %v\n", check.name, err)
			continue
		}

		// The transport is gone; nothing after this can run.
		fmt.Printf("  %-16s FAIL  %v\n", check.name, err)
		fmt.Fprintf(os.Stderr, "\nConnection lost during self test\n")
		os.Exit(2)
	}

	client.exit()

	fmt.Printf("\n--- Self test summary ---\n")
	fmt.Printf("Checks passed: %d/%d\n", passed, len(checks))

	if passed != len(checks) {
		fmt.Printf("Result: FAILED\n")
		os.Exit(1)
	}
	fmt.Printf("Result: PASSED\n")
	return nil
}
