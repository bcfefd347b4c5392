// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/braise/pkg/amorce"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive TUI console for the bootloader shell",
	Long: `Talk to the bootloader shell through an interactive terminal UI.

Commands typed at the input line go to the device verbatim and the
exchange lands in the scrollback, so the transcript of a debugging
session stays on screen. The status bar tracks the connection, the
bootloader version and the session counters.

Features:
  - Scrollback of every command and response (PgUp/PgDn, mouse wheel)
  - Command history (Up/Down arrows)
  - mem-read responses rendered as a hex dump
  - Automatic reconnection after exit, reset, jump-to or a dropped link

flash-write and update-new need a data stream after the command line and
cannot be driven from the console; use 'braise flash' and 'braise update'
for those.

Supports both serial and WebSocket connections.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// consoleSession serializes shell exchanges for the TUI. Bubble Tea runs
// commands on their own goroutines, so the mutex keeps one exchange on
// the wire at a time.
type consoleSession struct {
	mu     sync.Mutex
	client *shellClient
	conn   Connection
}

// attach swaps in a fresh connection, consumes the greeting and returns
// the banner text.
func (cs *consoleSession) attach(conn Connection) (string, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.conn != nil {
		cs.conn.Close()
	}
	cs.conn = conn
	cs.client = newShellClient(conn)
	return cs.client.connect()
}

func (cs *consoleSession) close() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.conn != nil {
		cs.conn.Close()
		cs.conn = nil
	}
}

// run executes one typed command line and returns the response text plus
// whether the command ends the session (exit, reset and jump-to all do).
// Response discipline varies by command: most are terminated by OK or an
// error report, mem-read returns raw bytes by length, jump-to announces
// the jump and never returns to the prompt.
func (cs *consoleSession) run(line string) (string, bool, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.client == nil {
		return "", false, errors.New("not connected")
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false, nil
	}
	name := strings.ToLower(fields[0])
	switch name {
	case amorce.CmdExit:
		if _, err := cs.client.command(line); err != nil {
			return "", false, err
		}
		cs.client.readUntil(amorce.TxtFarewell)
		return "", true, nil

	case amorce.CmdReset:
		if _, err := cs.client.command(line); err != nil {
			return "", false, err
		}
		return "", true, nil

	case amorce.CmdJumpTo:
		if err := cs.client.jump(line); err != nil {
			return "", false, err
		}
		return "Jumping to user application :)", true, nil

	case amorce.CmdMemRead:
		start, count, err := parseMemReadLine(line)
		if err != nil {
			return "", false, err
		}
		data, err := cs.client.memRead(start, count)
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("%d bytes at %#010x\n%s", count, start, hex.Dump(data)), false, nil

	case amorce.CmdFlashWrite, amorce.CmdUpdateNew:
		return "", false, fmt.Errorf("%s needs a data stream; use 'braise flash' or 'braise update'", name)

	default:
		out, err := cs.client.command(line)
		return out, false, err
	}
}

// parseMemReadLine pulls start= and count= out of a typed mem-read so the
// client knows how many raw bytes to expect.
func parseMemReadLine(line string) (uint32, uint32, error) {
	var start, count uint32
	var haveStart, haveCount bool
	for _, f := range strings.Fields(line)[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case amorce.ParStart:
			a, err := amorce.ParseAddr(v)
			if err != nil {
				return 0, 0, err
			}
			start, haveStart = a, true
		case amorce.ParCount:
			n, err := amorce.ParseU32(v, 10)
			if err != nil {
				return 0, 0, err
			}
			count, haveCount = n, true
		}
	}
	if !haveStart || !haveCount {
		return 0, 0, errors.New("mem-read needs start= and count=")
	}
	return start, count, nil
}

func runConsole(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	sess := &consoleSession{}
	banner, err := sess.attach(conn)
	if err != nil {
		sess.close()
		return err
	}

	m := initialConsoleModel(sess, connInfo, banner)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	if _, err := p.Run(); err != nil {
		sess.close()
		return fmt.Errorf("TUI error: %v", err)
	}

	sess.close()
	return nil
}
