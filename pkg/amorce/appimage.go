// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"bytes"

	"github.com/marcinbor85/gohex"
)

// appSegment is one contiguous run of decoded application bytes.
type appSegment struct {
	addr uint32
	data []byte
}

// activateStaged moves the staged image into the active application
// sectors. Raw images are copied as-is; Intel hex and S-record images are
// decoded from the staged text and programmed at the addresses they
// carry. Every destination must fall inside the active application
// range, so a malformed image can never reach the boot sectors.
func (s *Session) activateStaged(rec BootRecord) error {
	if err := s.eraseFlash(eraseSector, ActiveAppSector, ActiveAppSectors); err != nil {
		return err
	}

	if rec.AppType == AppBin {
		return withFlashUnlocked(s.hw.Flash, func() error {
			return s.copyFlash(ActiveAppAddr, StagingAddr, rec.Length)
		})
	}

	text := make([]byte, rec.Length)
	if err := s.hw.Memory.ReadMemory(StagingAddr, text); err != nil {
		return halCode(err, ErrSegmentation)
	}

	var segs []appSegment
	var err error
	switch rec.AppType {
	case AppHex:
		segs, err = decodeIntelHex(text)
	case AppSrec:
		segs, err = decodeSrec(text)
	default:
		return ErrAppType
	}
	if err != nil {
		return err
	}

	return withFlashUnlocked(s.hw.Flash, func() error {
		for _, seg := range segs {
			if err := s.hw.Flash.Program(seg.addr, seg.data); err != nil {
				return halCode(err, ErrHALWrite)
			}
			s.stats.BytesFlashed += uint64(len(seg.data))
		}
		return nil
	})
}

// decodeIntelHex parses Intel hex text into validated segments.
func decodeIntelHex(text []byte) ([]appSegment, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(bytes.NewReader(text)); err != nil {
		return nil, ErrInvalidIHex
	}
	var segs []appSegment
	for _, seg := range mem.GetDataSegments() {
		as := appSegment{addr: seg.Address, data: seg.Data}
		if err := validateSegment(as); err != nil {
			return nil, err
		}
		segs = append(segs, as)
	}
	return segs, nil
}

// decodeSrec parses Motorola S-record text into validated segments.
// Supported record types are S0 (header, skipped), S1/S2/S3 (data with
// 16/24/32-bit addresses), S5/S6 (counts, skipped) and S7/S8/S9
// (termination). S4 and anything unknown is rejected.
func decodeSrec(text []byte) ([]appSegment, error) {
	var segs []appSegment
	for _, line := range bytes.Split(text, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] != 'S' || len(line) < 4 {
			return nil, ErrInvalidSrec
		}

		var addrLen int
		switch line[1] {
		case '1':
			addrLen = 2
		case '2':
			addrLen = 3
		case '3':
			addrLen = 4
		case '0', '5', '6':
			continue
		case '7', '8', '9':
			return segs, nil
		default:
			return nil, ErrSrecFunction
		}

		raw, err := decodeHexBytes(line[2:])
		if err != nil {
			return nil, err
		}
		// raw = count byte, address, data, checksum byte
		if len(raw) < 2 || int(raw[0]) != len(raw)-1 {
			return nil, ErrInvalidSrec
		}
		var sum byte
		for _, b := range raw[:len(raw)-1] {
			sum += b
		}
		if ^sum != raw[len(raw)-1] {
			return nil, ErrInvalidSrec
		}

		body := raw[1 : len(raw)-1]
		if len(body) < addrLen {
			return nil, ErrInvalidSrec
		}
		var addr uint32
		for _, b := range body[:addrLen] {
			addr = addr<<8 | uint32(b)
		}
		seg := appSegment{addr: addr, data: body[addrLen:]}
		if err := validateSegment(seg); err != nil {
			return nil, err
		}
		if len(seg.data) > 0 {
			segs = append(segs, seg)
		}
	}
	return segs, nil
}

func decodeHexBytes(text []byte) ([]byte, error) {
	if len(text)%2 != 0 {
		return nil, ErrInvalidSrec
	}
	out := make([]byte, len(text)/2)
	for i := range out {
		hi, ok1 := hexDigit(text[2*i])
		lo, ok2 := hexDigit(text[2*i+1])
		if !ok1 || !ok2 {
			return nil, ErrInvalidHexChar
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

// validateSegment keeps decoded images inside the active application
// sectors.
func validateSegment(seg appSegment) error {
	active := FlashRegion{
		Name: "APP",
		Base: ActiveAppAddr,
		Size: SectorBase(StagingSector) - ActiveAppAddr,
	}
	if !active.ContainsRange(seg.addr, uint32(len(seg.data))) {
		return ErrSegmentation
	}
	return nil
}
