// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import "errors"

// halCode normalizes a hardware error: codes pass through, anything else
// collapses to the fallback for that operation.
func halCode(err error, fallback ErrCode) error {
	if err == nil {
		return nil
	}
	var code ErrCode
	if errors.As(err, &code) {
		return code
	}
	return fallback
}

// withFlashUnlocked runs fn with the flash control registers unlocked.
// The array is locked again on every path out, including errors.
func withFlashUnlocked(f FlashController, fn func() error) error {
	if err := f.Unlock(); err != nil {
		return halCode(err, ErrHALUnlock)
	}
	defer f.Lock()
	return fn()
}

// receiveToFlash streams count raw bytes from the host into flash at
// addr. The transfer is chunked; each chunk is followed on the wire by
// its checksum trailer and verified before programming. What a failed
// verification does depends on the session policy: PolicyWarn programs
// the chunk anyway, PolicyReject drains the rest of the upload so the
// command stream stays in sync and then reports the mismatch.
func (s *Session) receiveToFlash(addr, count uint32, kind ChecksumKind) error {
	s.stats.Uploads++
	trailer := TrailerLen(kind)

	s.hw.Leds.LedOn(LedMemory)
	defer s.hw.Leds.LedOff(LedMemory)

	return withFlashUnlocked(s.hw.Flash, func() error {
		buf := make([]byte, ChunkSize+trailer)
		for count > 0 {
			n := uint32(ChunkSize)
			if count < n {
				n = count
			}
			chunk := buf[:int(n)+trailer]
			if err := s.rx.readFull(chunk); err != nil {
				return err
			}

			if err := verifyChunk(kind, chunk[:n], chunk[n:]); err != nil {
				s.stats.ChecksumFailures++
				if s.policy == PolicyReject {
					if derr := s.drainUpload(count-n, trailer); derr != nil {
						return derr
					}
					return err
				}
				s.log.Warnf("checksum mismatch at %#x, programming anyway", addr)
			}

			if err := s.hw.Flash.Program(addr, chunk[:n]); err != nil {
				return halCode(err, ErrHALWrite)
			}
			s.stats.BytesFlashed += uint64(n)
			addr += n
			count -= n
		}
		return nil
	})
}

// drainUpload consumes the remainder of an aborted upload off the wire.
func (s *Session) drainUpload(count uint32, trailer int) error {
	buf := make([]byte, ChunkSize+trailer)
	for count > 0 {
		n := uint32(ChunkSize)
		if count < n {
			n = count
		}
		if err := s.rx.readFull(buf[:int(n)+trailer]); err != nil {
			return err
		}
		count -= n
	}
	return nil
}

// eraseFlash performs a mass or sector erase with the array unlocked.
func (s *Session) eraseFlash(t eraseType, first, count uint32) error {
	s.hw.Leds.LedOn(LedMemory)
	defer s.hw.Leds.LedOff(LedMemory)

	return withFlashUnlocked(s.hw.Flash, func() error {
		if t == eraseMass {
			return halCode(s.hw.Flash.MassErase(), ErrHALErase)
		}
		return halCode(s.hw.Flash.EraseSectors(int(first), int(count)), ErrHALErase)
	})
}

// copyFlash moves n bytes inside flash, used when a staged application is
// activated. Reads go through the memory interface one chunk at a time so
// the copy never buffers the whole image.
func (s *Session) copyFlash(dst, src, n uint32) error {
	buf := make([]byte, ChunkSize)
	for n > 0 {
		step := uint32(ChunkSize)
		if n < step {
			step = n
		}
		if err := s.hw.Memory.ReadMemory(src, buf[:step]); err != nil {
			return halCode(err, ErrSegmentation)
		}
		if err := s.hw.Flash.Program(dst, buf[:step]); err != nil {
			return halCode(err, ErrHALWrite)
		}
		s.stats.BytesFlashed += uint64(step)
		dst += step
		src += step
		n -= step
	}
	return nil
}
