// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// OTPBlocks is the number of one-time-programmable blocks on the ICU.
const OTPBlocks = 16

func cmdGetRDPLevel(s *Session, _ *ParsedCommand) error {
	if s.hw.Options == nil {
		return ErrNotImplemented
	}
	lvl, err := s.hw.Options.RDPLevel()
	if err != nil {
		return halCode(err, ErrInvalidParam)
	}
	return s.sendLine(fmt.Sprintf("RDP level: %d", lvl))
}

func cmdEnWriteProt(s *Session, c *ParsedCommand) error {
	return setWriteProt(s, c, true)
}

func cmdDisWriteProt(s *Session, c *ParsedCommand) error {
	return setWriteProt(s, c, false)
}

func setWriteProt(s *Session, c *ParsedCommand, enable bool) error {
	if s.hw.Options == nil {
		return ErrNotImplemented
	}
	val, ok := c.Arg(ParMask)
	if !ok {
		return ErrNeedParam
	}
	// The mask is hexadecimal; the LSB selects sector 0.
	mask, err := ParseU32(val, 16)
	if err != nil {
		return err
	}
	if err := validateSectorMask(mask); err != nil {
		return err
	}
	s.log.Infof("write protection mask %#x enable=%v", mask, enable)
	return halCode(s.hw.Options.SetWriteProtection(mask, enable), ErrInvalidParam)
}

func cmdReadSectorStatus(s *Session, _ *ParsedCommand) error {
	if s.hw.Options == nil {
		return ErrNotImplemented
	}
	mask, err := s.hw.Options.WriteProtection()
	if err != nil {
		return halCode(err, ErrInvalidParam)
	}

	var b strings.Builder
	b.WriteString("Sector write protection:" + crlf)
	for i := 0; i < SectorTotal; i++ {
		state := "writable"
		if mask&(1<<i) != 0 {
			state = "protected"
		}
		fmt.Fprintf(&b, "  %2d: %s%s", i, state, crlf)
	}
	return s.send(b.String())
}

func cmdGetOTP(s *Session, c *ParsedCommand) error {
	if s.hw.Options == nil {
		return ErrNotImplemented
	}

	first, last := 0, OTPBlocks-1
	if val, ok := c.Arg(ParBlock); ok {
		n, err := ParseU32(val, 10)
		if err != nil {
			return err
		}
		if n >= OTPBlocks {
			return ErrWriteInvalidAddr
		}
		first, last = int(n), int(n)
	}

	var b strings.Builder
	for i := first; i <= last; i++ {
		data, locked, err := s.hw.Options.OTP(i)
		if err != nil {
			return halCode(err, ErrInvalidParam)
		}
		state := "open"
		if locked {
			state = "locked"
		}
		fmt.Fprintf(&b, "Block %2d (%s): %s%s", i, state, hex.EncodeToString(data), crlf)
	}
	return s.send(b.String())
}
