// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"encoding/hex"
	"fmt"
)

func cmdVersion(s *Session, _ *ParsedCommand) error {
	return s.sendLine(Version)
}

func cmdHelp(s *Session, _ *ParsedCommand) error {
	return s.send(helpText())
}

func cmdCID(s *Session, _ *ParsedCommand) error {
	id, err := s.hw.System.ChipID()
	if err != nil {
		return halCode(err, ErrNotImplemented)
	}
	return s.send(fmt.Sprintf("Device ID: %#06x%sRevision: %#06x%sUnique ID: %s%s",
		id.Device, crlf, id.Revision, crlf, hex.EncodeToString(id.Unique[:]), crlf))
}

// cmdReset confirms first and restarts second; on hardware the restart
// never returns, so the confirmation cannot wait for the usual path.
func cmdReset(s *Session, _ *ParsedCommand) error {
	if err := s.send(TxtSuccess); err != nil {
		return err
	}
	s.log.Infof("host requested restart")
	s.hw.System.Restart()
	return errRestarted
}

func cmdExit(s *Session, _ *ParsedCommand) error {
	s.exitReq = true
	return nil
}
