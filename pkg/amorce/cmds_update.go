// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

// cmdUpdateNew receives a new application image into the staging sectors
// and commits a ready boot record. The device then restarts; the next
// session's auto-activation moves the image into place.
func cmdUpdateNew(s *Session, c *ParsedCommand) error {
	countVal, ok := c.Arg(ParCount)
	if !ok {
		return ErrNeedParam
	}
	count, err := ParseU32(countVal, 10)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrInvalidSize
	}
	if count > MaxNewAppLen {
		return ErrNewAppTooLong
	}

	appType := AppBin
	if val, ok := c.Arg(ParType); ok {
		if appType, err = parseAppType(val); err != nil {
			return err
		}
	}
	kind := ChecksumNone
	if val, ok := c.Arg(ParCksum); ok {
		if kind, err = parseChecksumKind(val); err != nil {
			return err
		}
	}
	if kind == ChecksumCRC32 && count%4 != 0 {
		return ErrCRCLen
	}

	s.log.Infof("staging new %s application, %d bytes", appType, count)
	if err := s.eraseFlash(eraseSector, StagingSector, StagingSectors); err != nil {
		return err
	}
	if err := s.send(TxtReady); err != nil {
		return err
	}
	if err := s.receiveToFlash(StagingAddr, count, kind); err != nil {
		return err
	}

	rec := BootRecord{
		AppType:  appType,
		Checksum: kind,
		Length:   count,
		Ready:    true,
	}
	if err := StoreBootRecord(s.hw.Flash, rec); err != nil {
		return err
	}

	if err := s.send(TxtSuccess); err != nil {
		return err
	}
	if err := s.send("Restarting..." + crlf); err != nil {
		return err
	}
	s.log.Infof("staging committed, restarting")
	s.hw.System.Restart()
	return errRestarted
}

// cmdUpdateAct activates the staged application. Without a ready boot
// record it reports "No update needed", so running it on every boot is
// safe; force=true re-activates a record that was already consumed.
func cmdUpdateAct(s *Session, c *ParsedCommand) error {
	force := false
	if val, ok := c.Arg(ParForce); ok {
		var err error
		if force, err = parseForce(val); err != nil {
			return err
		}
	}

	rec, ok := LoadBootRecord(s.hw.Memory)
	if !ok {
		if force {
			// Nothing was ever staged, so there is nothing to force.
			return ErrNullParam
		}
		s.log.Debugf("no boot record present")
		return s.sendLine("No update needed")
	}
	if !rec.Ready && !force {
		s.log.Debugf("staged application already active")
		return s.sendLine("No update needed")
	}

	s.log.Infof("activating staged %s application, %d bytes", rec.AppType, rec.Length)
	if err := s.activateStaged(rec); err != nil {
		return err
	}

	rec.Ready = false
	if err := StoreBootRecord(s.hw.Flash, rec); err != nil {
		return err
	}
	return s.sendLine("Updated active application")
}
