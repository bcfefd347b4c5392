// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

func cmdJumpTo(s *Session, c *ParsedCommand) error {
	val, ok := c.Arg(ParAddr)
	if !ok {
		return ErrNeedParam
	}
	addr, err := ParseAddr(val)
	if err != nil {
		return err
	}
	if !s.regions.jumpTarget(addr) {
		return ErrJumpInvalidAddr
	}

	if err := s.send("Jumping to user application :)" + crlf); err != nil {
		return err
	}
	s.log.Infof("handing off to application at %#x", addr)
	if err := Launch(s.hw, addr); err != nil {
		return err
	}
	return errRestarted
}

func cmdFlashErase(s *Session, c *ParsedCommand) error {
	val, ok := c.Arg(ParType)
	if !ok {
		return ErrNeedParam
	}
	t, err := parseEraseType(val)
	if err != nil {
		return err
	}

	if t == eraseMass {
		s.log.Infof("mass erasing flash")
		return s.eraseFlash(eraseMass, 0, 0)
	}

	sectVal, okSect := c.Arg(ParSector)
	countVal, okCount := c.Arg(ParCount)
	if !okSect || !okCount {
		return ErrNeedParam
	}
	sect, err := ParseU32(sectVal, 10)
	if err != nil {
		return err
	}
	count, err := ParseU32(countVal, 10)
	if err != nil {
		return err
	}
	if err := validateSectorRange(sect, count); err != nil {
		return err
	}

	s.log.Infof("erasing %d sectors from sector %d", count, sect)
	return s.eraseFlash(eraseSector, sect, count)
}

func cmdFlashWrite(s *Session, c *ParsedCommand) error {
	start, count, err := rangeArgs(c)
	if err != nil {
		return err
	}
	if !s.regions.writeTarget(start, count) {
		return ErrWriteInvalidAddr
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

	if err := s.send(TxtReady); err != nil {
		return err
	}
	s.log.Infof("writing %d bytes to %#x (cksum %s)", count, start, kind)
	return s.receiveToFlash(start, count, kind)
}

func cmdMemRead(s *Session, c *ParsedCommand) error {
	start, count, err := rangeArgs(c)
	if err != nil {
		return err
	}
	if !s.regions.readTarget(start, count) {
		return ErrWriteInvalidAddr
	}

	buf := make([]byte, ChunkSize)
	for count > 0 {
		n := uint32(ChunkSize)
		if count < n {
			n = count
		}
		if err := s.hw.Memory.ReadMemory(start, buf[:n]); err != nil {
			return halCode(err, ErrSegmentation)
		}
		if _, err := s.conn.Write(buf[:n]); err != nil {
			return err
		}
		start += n
		count -= n
	}
	return nil
}

// rangeArgs decodes the start/count pair shared by the range commands.
// A zero count is rejected here so every range is non-empty.
func rangeArgs(c *ParsedCommand) (start, count uint32, err error) {
	startVal, okStart := c.Arg(ParStart)
	countVal, okCount := c.Arg(ParCount)
	if !okStart || !okCount {
		return 0, 0, ErrNeedParam
	}
	if start, err = ParseAddr(startVal); err != nil {
		return 0, 0, err
	}
	if count, err = ParseU32(countVal, 10); err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, ErrInvalidSize
	}
	return start, count, nil
}
