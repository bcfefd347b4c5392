// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/Thermoquad/braise/pkg/amorce"
)

var discoverTimeout int

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan serial ports for a bootloader",
	Long: `Probe every serial port on the machine for an Amorce bootloader.

Each port is opened in turn and sent a version request. A port that
answers with the bootloader version within the timeout is reported as a
hit; everything else is skipped quietly. The request is preceded by an
empty line, so a device that is already sitting at its prompt answers
just like one that only just booted.

A device only presents the shell while it waits in the boot stage, so
run this right after power-on or a reset.

Exit codes:
  0 - At least one bootloader found
  1 - No bootloader found
  2 - Port enumeration failed

Examples:
  braise discover
  braise discover --timeout 3 --baud 921600`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 2, "Per-port timeout in seconds")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Port enumeration error: %v\n", err)
		os.Exit(2)
	}
	if len(ports) == 0 {
		fmt.Printf("No serial ports found.\n")
		os.Exit(1)
	}

	fmt.Printf("Braise - Bootloader Discovery\n")
	fmt.Printf("Ports: %d\n", len(ports))
	fmt.Printf("Baud: %d\n", baudRate)
	fmt.Printf("Timeout: %d second(s) per port\n\n", discoverTimeout)

	found := 0
	for _, port := range ports {
		version, err := probePort(port, time.Duration(discoverTimeout)*time.Second)
		if err != nil {
			fmt.Printf("  %-24s -\n", port)
			continue
		}
		found++
		fmt.Printf("  %-24s bootloader %s\n", port, version)
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Bootloaders found: %d\n", found)

	if found == 0 {
		fmt.Printf("No bootloader answered. Reset the device and try again.\n")
		os.Exit(1)
	}
	return nil
}

// probePort asks one port for the bootloader version, bounded by timeout.
// Serial reads carry no deadline, so the exchange runs on a goroutine that
// gets unblocked by closing the port when time runs out.
func probePort(port string, timeout time.Duration) (string, error) {
	conn, err := OpenSerialConnection(port, baudRate)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	type result struct {
		version string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		// The empty line first: a device already at its prompt swallows
		// it silently and reprompts, and a device mid-greeting queues it.
		// Either way the version request that follows gets answered.
		if _, err := conn.Write([]byte("\r\n" + amorce.CmdVersion + "\r\n")); err != nil {
			resChan <- result{err: err}
			return
		}
		client := newShellClient(conn)
		text, err := client.readUntil(amorce.TxtSuccess)
		if err != nil {
			resChan <- result{err: err}
			return
		}
		resChan <- result{version: lastResponseLine(text)}
	}()

	select {
	case res := <-resChan:
		return res.version, res.err
	case <-time.After(timeout):
		return "", errors.New("no answer")
	}
}

// lastResponseLine digs the version out of whatever preceded the OK:
// greeting lines and stray prompts may come first, the version is last.
func lastResponseLine(text string) string {
	lines := strings.Split(text, "\r\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(strings.TrimPrefix(lines[i], "> "))
		if line != "" {
			return line
		}
	}
	return ""
}
