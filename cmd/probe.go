// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	probeTimeout int
	probeCount   int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the connection by querying the bootloader version",
	Long: `Connect to the bootloader, wait for its prompt and query the version.

Each probe waits for the shell prompt and round-trips a version command,
reporting the reported version string and the round-trip time. Repeated
probes reuse the same session.

This is useful for verifying:
  - The device is in bootloader mode and responding
  - Serial wiring or the WebSocket bridge works
  - HTTP Basic authentication works

Exit codes:
  0 - All probes successful
  1 - One or more probes failed/timed out
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 5, "Timeout in seconds for each probe")
	probeCmd.Flags().IntVar(&probeCount, "count", 3, "Number of probes to send")
}

func runProbe(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Braise - Bootloader Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per probe\n", probeTimeout)
	fmt.Printf("Count: %d probes\n\n", probeCount)

	client := newShellClient(conn)

	// Wait for the greeting banner first
	bannerChan := make(chan string, 1)
	errChan := make(chan error, 1)
	go func() {
		banner, err := client.connect()
		if err != nil {
			errChan <- err
			return
		}
		bannerChan <- banner
	}()

	select {
	case <-bannerChan:
		fmt.Printf("Bootloader prompt received\n\n")
	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Greeting failed: %v\n", err)
		os.Exit(2)
	case <-time.After(time.Duration(probeTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: no bootloader prompt in %ds\n", probeTimeout)
		fmt.Fprintf(os.Stderr, "Is the device in bootloader mode?\n")
		os.Exit(2)
	}

	successCount := 0
	failCount := 0

	for i := 1; i <= probeCount; i++ {
		fmt.Printf("Probe %d/%d: ", i, probeCount)

		type result struct {
			version string
			err     error
		}
		resChan := make(chan result, 1)

		startTime := time.Now()
		go func() {
			version, err := client.command("version")
			resChan <- result{version: version, err: err}
		}()

		select {
		case res := <-resChan:
			if res.err != nil {
				fmt.Printf("FAILED: %v\n", res.err)
				failCount++
				break
			}
			rtt := time.Since(startTime)
			fmt.Printf("version %s, rtt=%v\n",
				strings.TrimSpace(res.version), rtt.Round(time.Millisecond))
			successCount++

		case <-time.After(time.Duration(probeTimeout) * time.Second):
			fmt.Printf("TIMEOUT (no response in %ds)\n", probeTimeout)
			failCount++
		}

		// Small delay between probes
		if i < probeCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Probe statistics ---\n")
	fmt.Printf("%d probes sent, %d responses received, %.0f%% loss\n",
		probeCount, successCount, float64(failCount)/float64(probeCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
