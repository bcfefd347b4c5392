// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/braise/pkg/amorce"
)

// deviceError is an ERROR response from the bootloader, as opposed to a
// transport failure on our side.
type deviceError struct {
	msg string
}

func (e *deviceError) Error() string {
	return "bootloader: " + e.msg
}

// shellClient drives the bootloader command shell from the host side.
// The shell prompts before every read, so the client tracks whether the
// prompt for the next command has already been consumed (it has, after
// an ERROR response, because the error text is only terminated by the
// prompt that follows it).
type shellClient struct {
	conn     Connection
	rd       *bufio.Reader
	atPrompt bool
}

func newShellClient(conn Connection) *shellClient {
	return &shellClient{
		conn: conn,
		rd:   bufio.NewReader(conn),
	}
}

// connect consumes the greeting banner up to the first prompt and returns
// it. Activation of a previously staged image happens before the prompt,
// so any activation failure shows up inside the returned text.
func (c *shellClient) connect() (string, error) {
	banner, err := c.readUntil(amorce.TxtPrompt)
	if err != nil {
		return "", fmt.Errorf("no bootloader prompt: %w", err)
	}
	c.atPrompt = true
	log.Debugf("connected, %d byte banner", len(banner))
	return banner, nil
}

// command sends one line and returns the response payload that preceded
// the OK token. An ERROR response comes back as *deviceError.
func (c *shellClient) command(line string) (string, error) {
	if err := c.sendLine(line); err != nil {
		return "", err
	}
	return c.readResult()
}

// sendLine waits for the prompt if needed and transmits one command line.
func (c *shellClient) sendLine(line string) error {
	if !c.atPrompt {
		if _, err := c.readUntil(amorce.TxtPrompt); err != nil {
			return fmt.Errorf("no bootloader prompt: %w", err)
		}
	}
	c.atPrompt = false
	log.Debugf("sending %q", line)
	_, err := c.conn.Write([]byte(line + "\r\n"))
	return err
}

// readResult collects the response to one command. Success is terminated
// by the OK token; an error report is terminated by the next prompt.
func (c *shellClient) readResult() (string, error) {
	text, hit, err := c.readUntilEither(amorce.TxtSuccess, amorce.TxtPrompt)
	if err != nil {
		return "", err
	}
	if hit == amorce.TxtPrompt {
		c.atPrompt = true
		return "", c.parseError(text)
	}
	return strings.TrimPrefix(text, "\r\n"), nil
}

// parseError extracts the message from an ERROR response.
func (c *shellClient) parseError(text string) error {
	idx := strings.Index(text, amorce.TxtErrorPrefix)
	if idx < 0 {
		return fmt.Errorf("unexpected response: %q", text)
	}
	msg := text[idx+len(amorce.TxtErrorPrefix):]
	return &deviceError{msg: strings.TrimRight(msg, "\r\n")}
}

// upload runs one of the upload commands: send the command line, wait for
// the ready marker, stream the data in checksummed chunks, and collect
// the verdict.
func (c *shellClient) upload(line string, data []byte, kind amorce.ChecksumKind) error {
	if err := c.sendLine(line); err != nil {
		return err
	}

	text, hit, err := c.readUntilEither(amorce.TxtReady, amorce.TxtPrompt)
	if err != nil {
		return err
	}
	if hit == amorce.TxtPrompt {
		c.atPrompt = true
		return c.parseError(text)
	}

	for off := 0; off < len(data); off += amorce.ChunkSize {
		end := off + amorce.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]
		if _, err := c.conn.Write(chunk); err != nil {
			return err
		}
		if t := amorce.Trailer(kind, chunk); t != nil {
			if _, err := c.conn.Write(t); err != nil {
				return err
			}
		}
	}
	log.Debugf("uploaded %d bytes", len(data))

	_, err = c.readResult()
	return err
}

// flashWrite programs data at start through the flash-write command.
func (c *shellClient) flashWrite(start uint32, data []byte, kind amorce.ChecksumKind) error {
	line := fmt.Sprintf("%s %s=%#x %s=%d %s=%s",
		amorce.CmdFlashWrite, amorce.ParStart, start, amorce.ParCount, len(data),
		amorce.ParCksum, kind)
	return c.upload(line, data, kind)
}

// updateNew stages a new application image. On success the device commits
// the boot record and restarts, which ends the session.
func (c *shellClient) updateNew(data []byte, appType amorce.AppType, kind amorce.ChecksumKind) error {
	line := fmt.Sprintf("%s %s=%d %s=%s %s=%s",
		amorce.CmdUpdateNew, amorce.ParCount, len(data),
		amorce.ParType, appType, amorce.ParCksum, kind)
	if err := c.upload(line, data, kind); err != nil {
		return err
	}
	// The restart notice is the last thing the device says.
	c.readUntil("Restarting...\r\n")
	return nil
}

// updateAct asks the device to activate a staged image now.
func (c *shellClient) updateAct(force bool) error {
	line := amorce.CmdUpdateAct
	if force {
		line = fmt.Sprintf("%s %s=%s", amorce.CmdUpdateAct, amorce.ParForce, amorce.TokForceTrue)
	}
	_, err := c.command(line)
	return err
}

// memRead fetches count raw bytes starting at start. The data arrives
// unframed ahead of the OK token, so it is read by length rather than by
// marker.
func (c *shellClient) memRead(start, count uint32) ([]byte, error) {
	line := fmt.Sprintf("%s %s=%#x %s=%d",
		amorce.CmdMemRead, amorce.ParStart, start, amorce.ParCount, count)
	if err := c.sendLine(line); err != nil {
		return nil, err
	}

	// A validation failure produces an error report instead of data.
	peek := len(amorce.TxtErrorPrefix)
	if avail := int(count) + len(amorce.TxtSuccess); avail < peek {
		peek = avail
	}
	head, err := c.rd.Peek(peek)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(amorce.TxtErrorPrefix, string(head)) || strings.HasPrefix(string(head), amorce.TxtErrorPrefix) {
		text, err := c.readUntil(amorce.TxtPrompt)
		if err != nil {
			return nil, err
		}
		c.atPrompt = true
		return nil, c.parseError(text)
	}

	data := make([]byte, count)
	if _, err := io.ReadFull(c.rd, data); err != nil {
		return nil, err
	}
	tail := make([]byte, len(amorce.TxtSuccess))
	if _, err := io.ReadFull(c.rd, tail); err != nil {
		return nil, err
	}
	if string(tail) != amorce.TxtSuccess {
		return nil, fmt.Errorf("expected OK after read data, got %q", tail)
	}
	return data, nil
}

// jumpTo hands the device over to the application at addr. The shell
// announces the jump and never returns to the prompt.
func (c *shellClient) jumpTo(addr uint32) error {
	return c.jump(fmt.Sprintf("%s %s=%#x", amorce.CmdJumpTo, amorce.ParAddr, addr))
}

func (c *shellClient) jump(line string) error {
	if err := c.sendLine(line); err != nil {
		return err
	}
	text, hit, err := c.readUntilEither("Jumping to user application :)\r\n", amorce.TxtPrompt)
	if err != nil {
		return err
	}
	if hit == amorce.TxtPrompt {
		c.atPrompt = true
		return c.parseError(text)
	}
	return nil
}

// reset restarts the device. OK arrives first; the session is gone after.
func (c *shellClient) reset() error {
	if err := c.sendLine(amorce.CmdReset); err != nil {
		return err
	}
	_, err := c.readResult()
	return err
}

// exit ends the session cleanly and drains the farewell.
func (c *shellClient) exit() error {
	if _, err := c.command(amorce.CmdExit); err != nil {
		return err
	}
	c.readUntil(amorce.TxtFarewell)
	return nil
}

// readUntil accumulates bytes until marker appears, returning everything
// before it.
func (c *shellClient) readUntil(marker string) (string, error) {
	text, _, err := c.readUntilEither(marker, marker)
	return text, err
}

// readUntilEither accumulates bytes until one of two markers terminates
// the stream, returning the text before the marker and which marker hit.
func (c *shellClient) readUntilEither(a, b string) (string, string, error) {
	var buf []byte
	for {
		ch, err := c.rd.ReadByte()
		if err != nil {
			return string(buf), "", err
		}
		buf = append(buf, ch)
		if len(buf) >= len(a) && string(buf[len(buf)-len(a):]) == a {
			return string(buf[:len(buf)-len(a)]), a, nil
		}
		if len(buf) >= len(b) && string(buf[len(buf)-len(b):]) == b {
			return string(buf[:len(buf)-len(b)]), b, nil
		}
	}
}
