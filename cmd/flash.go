// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/braise/pkg/amorce"
)

var (
	flashFile   string
	flashStart  string
	flashCksum  string
	flashErase  bool
	flashVerify bool
	flashWatch  bool
)

var flashCmd = &cobra.Command{
	Use:   "flash",
	Short: "Program a binary file into device flash",
	Long: `Write a raw binary file into the device flash at a given address.

The data is streamed in checksummed chunks; the bootloader verifies each
chunk before programming it. With --erase the covered sectors are erased
first, with --verify the written range is read back and compared.

With --watch the tool stays connected, watches the file for changes and
re-flashes on every write. This makes a tight edit-build-flash loop:

  braise flash --port /dev/ttyUSB0 --file app.bin --erase --watch

The default target address is the active application base.`,
	RunE: runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)
	flashCmd.Flags().StringVarP(&flashFile, "file", "f", "", "Binary file to program (required)")
	flashCmd.Flags().StringVar(&flashStart, "start", fmt.Sprintf("%#x", amorce.ActiveAppAddr), "Flash address to program at")
	flashCmd.Flags().StringVar(&flashCksum, "cksum", "sha256", "Chunk checksum: sha256, crc or no")
	flashCmd.Flags().BoolVar(&flashErase, "erase", false, "Erase covered sectors before programming")
	flashCmd.Flags().BoolVar(&flashVerify, "verify", false, "Read back and compare after programming")
	flashCmd.Flags().BoolVar(&flashWatch, "watch", false, "Watch the file and re-flash on change")
	flashCmd.MarkFlagRequired("file")
}

func runFlash(cmd *cobra.Command, args []string) error {
	start, err := amorce.ParseAddr(flashStart)
	if err != nil {
		return fmt.Errorf("invalid start address %q", flashStart)
	}
	kind, err := parseCksumFlag(flashCksum)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Braise - Flash Programmer\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	client := newShellClient(conn)
	if _, err := client.connect(); err != nil {
		return err
	}

	if err := flashOnce(client, start, kind); err != nil {
		return err
	}

	if !flashWatch {
		return client.exit()
	}

	// Watch mode: re-flash on every change until interrupted.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors replace files on
	// save, which drops a watch on the file itself.
	dir := filepath.Dir(flashFile)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", dir)
	}
	target := filepath.Clean(flashFile)

	fmt.Printf("\nWatching %s for changes (Ctrl+C to stop)\n", flashFile)
	var pending <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create ||
				event.Op&fsnotify.Rename == fsnotify.Rename {
				// Debounce: builds touch the file several times in a row.
				pending = time.After(500 * time.Millisecond)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)

		case <-pending:
			pending = nil
			fmt.Printf("\nFile changed, re-flashing...\n")
			if err := flashOnce(client, start, kind); err != nil {
				return err
			}
			fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n", flashFile)
		}
	}
}

// flashOnce runs one erase/program/verify cycle with the current file
// contents.
func flashOnce(client *shellClient, start uint32, kind amorce.ChecksumKind) error {
	data, err := os.ReadFile(flashFile)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", flashFile)
	}
	if len(data) == 0 {
		return fmt.Errorf("%s is empty", flashFile)
	}

	if flashErase {
		first, count, err := coveringSectors(start, uint32(len(data)))
		if err != nil {
			return err
		}
		fmt.Printf("Erasing %d sector(s) from sector %d... ", count, first)
		line := fmt.Sprintf("%s %s=%s %s=%d %s=%d",
			amorce.CmdFlashErase, amorce.ParType, amorce.TokEraseSector,
			amorce.ParSector, first, amorce.ParCount, count)
		if _, err := client.command(line); err != nil {
			fmt.Printf("FAILED\n")
			return err
		}
		fmt.Printf("done\n")
	}

	fmt.Printf("Programming %d bytes at %#x... ", len(data), start)
	startTime := time.Now()
	if err := client.flashWrite(start, data, kind); err != nil {
		fmt.Printf("FAILED\n")
		return err
	}
	elapsed := time.Since(startTime).Round(time.Millisecond)
	fmt.Printf("done (%v, %.1f KiB/s)\n", elapsed,
		float64(len(data))/1024.0/elapsed.Seconds())

	if flashVerify {
		fmt.Printf("Verifying... ")
		readBack, err := client.memRead(start, uint32(len(data)))
		if err != nil {
			fmt.Printf("FAILED\n")
			return err
		}
		if !bytes.Equal(readBack, data) {
			fmt.Printf("MISMATCH\n")
			return fmt.Errorf("verification failed: device contents differ")
		}
		fmt.Printf("OK\n")
	}

	return nil
}

// coveringSectors returns the sector range that contains [start,
// start+length).
func coveringSectors(start, length uint32) (first, count int, err error) {
	end := start + length - 1
	first = -1
	last := -1
	for s := 0; s < amorce.SectorTotal; s++ {
		base := amorce.SectorBase(s)
		top := base + amorce.SectorSize(s) - 1
		if start <= top && end >= base {
			if first < 0 {
				first = s
			}
			last = s
		}
	}
	if first < 0 {
		return 0, 0, fmt.Errorf("address range %#x+%d is outside flash", start, length)
	}
	return first, last - first + 1, nil
}

// parseCksumFlag maps the --cksum flag to a checksum kind.
func parseCksumFlag(v string) (amorce.ChecksumKind, error) {
	switch v {
	case amorce.TokCksumSHA256:
		return amorce.ChecksumSHA256, nil
	case amorce.TokCksumCRC:
		return amorce.ChecksumCRC32, nil
	case amorce.TokCksumNone:
		return amorce.ChecksumNone, nil
	}
	return 0, fmt.Errorf("invalid checksum kind %q (use sha256, crc or no)", v)
}
