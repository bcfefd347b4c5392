// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/braise/pkg/amorce"
)

var (
	eraseMassFlag bool
	eraseSector   int
	eraseCount    int
	eraseYes      bool
)

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase flash sectors or the whole array",
	Long: `Erase device flash through the bootloader.

Sector mode erases a run of consecutive sectors:

  braise erase --port /dev/ttyUSB0 --sector 4 --count 4

Mass mode erases the entire flash array, including the bootloader's own
record keeping. Mass erase asks for confirmation unless --yes is given.

The bootloader refuses to erase write-protected sectors; clear protection
first with the console's dis-write-prot command.`,
	RunE: runErase,
}

func init() {
	rootCmd.AddCommand(eraseCmd)
	eraseCmd.Flags().BoolVar(&eraseMassFlag, "mass", false, "Erase the entire flash array")
	eraseCmd.Flags().IntVar(&eraseSector, "sector", -1, "First sector to erase")
	eraseCmd.Flags().IntVar(&eraseCount, "count", 1, "Number of sectors to erase")
	eraseCmd.Flags().BoolVar(&eraseYes, "yes", false, "Skip the mass erase confirmation")
}

func runErase(cmd *cobra.Command, args []string) error {
	if !eraseMassFlag && eraseSector < 0 {
		return fmt.Errorf("either --mass or --sector must be given")
	}
	if eraseMassFlag && eraseSector >= 0 {
		return fmt.Errorf("--mass and --sector are mutually exclusive")
	}

	if eraseMassFlag && !eraseYes {
		fmt.Printf("Mass erase wipes the ENTIRE flash array of the device.\n")
		fmt.Printf("Type \"yes\" to continue: ")
		reader := bufio.NewReader(os.Stdin)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %v", err)
		}
		if strings.TrimSpace(answer) != "yes" {
			fmt.Printf("Aborted.\n")
			return nil
		}
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Braise - Flash Erase\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	client := newShellClient(conn)
	if _, err := client.connect(); err != nil {
		return err
	}

	var line string
	if eraseMassFlag {
		fmt.Printf("Mass erasing flash... ")
		line = fmt.Sprintf("%s %s=%s", amorce.CmdFlashErase, amorce.ParType, amorce.TokEraseMass)
	} else {
		fmt.Printf("Erasing %d sector(s) from sector %d... ", eraseCount, eraseSector)
		line = fmt.Sprintf("%s %s=%s %s=%d %s=%d",
			amorce.CmdFlashErase, amorce.ParType, amorce.TokEraseSector,
			amorce.ParSector, eraseSector, amorce.ParCount, eraseCount)
	}
	if _, err := client.command(line); err != nil {
		fmt.Printf("FAILED\n")
		return err
	}
	fmt.Printf("done\n")

	return client.exit()
}
