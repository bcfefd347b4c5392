// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"encoding/binary"
	"hash/crc32"
)

// The boot record occupies the first bytes of its own flash sector and
// tells the boot stage whether a staged application is waiting to be
// activated. An erased or corrupted sector must never read as "ready", so
// the record carries an explicit magic, a layout version and a CRC over
// the payload; anything that fails those checks decodes as the zero
// record.
//
// Layout, little-endian, 16 bytes:
//
//	0  magic     u32
//	4  version   u8
//	5  app type  u8
//	6  checksum  u8
//	7  ready     u8
//	8  length    u32
//	12 crc32     u32 over bytes 0..12
const (
	recordMagic   uint32 = 0x414D5243 // "AMRC"
	recordVersion byte   = 1
	recordLen            = 16
)

// BootRecord describes the application staged in the staging sectors.
type BootRecord struct {
	AppType  AppType
	Checksum ChecksumKind
	Length   uint32
	Ready    bool
}

// Encode serializes the record for programming into the record sector.
func (r BootRecord) Encode() [recordLen]byte {
	var b [recordLen]byte
	binary.LittleEndian.PutUint32(b[0:], recordMagic)
	b[4] = recordVersion
	b[5] = byte(r.AppType)
	b[6] = byte(r.Checksum)
	if r.Ready {
		b[7] = 1
	}
	binary.LittleEndian.PutUint32(b[8:], r.Length)
	binary.LittleEndian.PutUint32(b[12:], crc32.ChecksumIEEE(b[:12]))
	return b
}

// decodeRecord parses a record sector image. Bad magic, an unknown layout
// version or a CRC mismatch all yield the zero record and ok=false.
func decodeRecord(b []byte) (BootRecord, bool) {
	if len(b) < recordLen {
		return BootRecord{}, false
	}
	if binary.LittleEndian.Uint32(b[0:]) != recordMagic {
		return BootRecord{}, false
	}
	if b[4] != recordVersion {
		return BootRecord{}, false
	}
	if binary.LittleEndian.Uint32(b[12:]) != crc32.ChecksumIEEE(b[:12]) {
		return BootRecord{}, false
	}
	return BootRecord{
		AppType:  AppType(b[5]),
		Checksum: ChecksumKind(b[6]),
		Length:   binary.LittleEndian.Uint32(b[8:]),
		Ready:    b[7] == 1,
	}, true
}

// LoadBootRecord reads and validates the boot record. A sector holding
// garbage, including the all-ones pattern of erased flash, yields the zero
// record and ok=false.
func LoadBootRecord(m MemoryReader) (BootRecord, bool) {
	var b [recordLen]byte
	if err := m.ReadMemory(BootRecordAddr, b[:]); err != nil {
		return BootRecord{}, false
	}
	return decodeRecord(b[:])
}

// StoreBootRecord erases the record sector and programs the record. The
// erase is the commit boundary: a power cut between erase and program
// leaves a sector that decodes as no record at all, never as a stale one.
func StoreBootRecord(f FlashController, r BootRecord) error {
	enc := r.Encode()
	return withFlashUnlocked(f, func() error {
		if err := f.EraseSectors(BootRecordSector, 1); err != nil {
			return halCode(err, ErrHALErase)
		}
		return halCode(f.Program(BootRecordAddr, enc[:]), ErrHALWrite)
	})
}
