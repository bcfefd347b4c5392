// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/braise/pkg/amorce"
)

var (
	updateFile  string
	updateType  string
	updateCksum string
	updateForce bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Stage a firmware update and restart the device",
	Long: `Upload a new application image into the staging area of device flash.

The image is streamed into the staging sectors together with a boot record,
then the device restarts itself. On the next boot the bootloader decodes the
staged image (bin, Intel hex or Motorola S-record), copies it over the
active application and marks the record consumed.

The image format defaults to the file extension (.hex, .srec/.s19, else
bin). Use --activate to activate a previously staged image in the current
session instead of uploading anything.

Examples:
  braise update --port /dev/ttyUSB0 --file app.srec
  braise update --url ws://bench.local/icu0 --file app.bin --cksum crc`,
	RunE: runUpdate,
}

var updateActivate bool

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringVarP(&updateFile, "file", "f", "", "Application image to stage")
	updateCmd.Flags().StringVar(&updateType, "type", "", "Image format: bin, hex or srec (default from extension)")
	updateCmd.Flags().StringVar(&updateCksum, "cksum", "sha256", "Chunk checksum: sha256, crc or no")
	updateCmd.Flags().BoolVar(&updateActivate, "activate", false, "Activate a staged image instead of uploading")
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "Re-activate an already consumed image (with --activate)")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if !updateActivate && updateFile == "" {
		return fmt.Errorf("either --file or --activate must be given")
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Braise - Firmware Update\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	client := newShellClient(conn)
	if _, err := client.connect(); err != nil {
		return err
	}

	if updateActivate {
		fmt.Printf("Activating staged image... ")
		if err := client.updateAct(updateForce); err != nil {
			fmt.Printf("FAILED\n")
			return err
		}
		fmt.Printf("done\n")
		return client.exit()
	}

	data, err := os.ReadFile(updateFile)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", updateFile)
	}
	if len(data) == 0 {
		return fmt.Errorf("%s is empty", updateFile)
	}
	if uint32(len(data)) > amorce.MaxNewAppLen {
		return fmt.Errorf("%s is %d bytes, staging area holds %d",
			updateFile, len(data), amorce.MaxNewAppLen)
	}

	appType, err := imageType(updateType, updateFile)
	if err != nil {
		return err
	}
	kind, err := parseCksumFlag(updateCksum)
	if err != nil {
		return err
	}

	fmt.Printf("Staging %d byte %s image... ", len(data), appType)
	startTime := time.Now()
	if err := client.updateNew(data, appType, kind); err != nil {
		fmt.Printf("FAILED\n")
		return err
	}
	fmt.Printf("done (%v)\n", time.Since(startTime).Round(time.Millisecond))
	fmt.Printf("Device is restarting; the image activates on next boot.\n")
	return nil
}

// imageType resolves the image format from the flag or the file name.
func imageType(flag, file string) (amorce.AppType, error) {
	v := flag
	if v == "" {
		switch strings.ToLower(filepath.Ext(file)) {
		case ".hex", ".ihex":
			v = amorce.TokAppHex
		case ".srec", ".s19", ".s28", ".s37", ".mot":
			v = amorce.TokAppSrec
		default:
			v = amorce.TokAppBin
		}
	}
	switch v {
	case amorce.TokAppBin:
		return amorce.AppBin, nil
	case amorce.TokAppHex:
		return amorce.AppHex, nil
	case amorce.TokAppSrec:
		return amorce.AppSrec, nil
	}
	return 0, fmt.Errorf("invalid image type %q (use bin, hex or srec)", v)
}
