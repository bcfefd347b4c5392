// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach a plain terminal to the bootloader shell",
	Long: `Connect to the bootloader and pass the shell through unmodified.

Everything the device sends is written to stdout as-is; every line typed
on stdin is sent to the device with the CRLF terminator the shell expects.
This is the escape hatch when you want the raw shell rather than the
structured commands: type "help" at the prompt to see what the bootloader
offers.

Note that upload commands (flash-write, update-new) expect raw binary
after the ready marker and are impractical to drive by hand; use the
flash and update commands for those.

Supports both serial and WebSocket connections.`,
	RunE: runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Braise - Shell Attach\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// Stdin lines go to the device with CRLF line endings.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if _, err := conn.Write([]byte(scanner.Text() + "\r\n")); err != nil {
				log.Printf("Write error: %v", err)
				return
			}
		}
	}()

	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil {
			// The session ends for good on exit, reset or jump, so a
			// closed connection is the normal way out
			if err == ErrConnectionClosed || err == io.EOF {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}
	}
}
