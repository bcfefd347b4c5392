// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"bytes"
	"testing"
)

// ============================================================
// Boot Record Tests
// ============================================================

func TestBootRecord_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rec  BootRecord
	}{
		{
			name: "ready binary image",
			rec:  BootRecord{AppType: AppBin, Checksum: ChecksumCRC32, Length: 1024, Ready: true},
		},
		{
			name: "consumed srec image",
			rec:  BootRecord{AppType: AppSrec, Checksum: ChecksumNone, Length: 393216, Ready: false},
		},
		{
			name: "zero length",
			rec:  BootRecord{AppType: AppHex, Checksum: ChecksumSHA256},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := tt.rec.Encode()
			got, ok := decodeRecord(enc[:])
			if !ok {
				t.Fatal("Encoded record failed to decode")
			}
			if got != tt.rec {
				t.Errorf("Round trip mismatch: expected %+v, got %+v", tt.rec, got)
			}
		})
	}
}

func TestDecodeRecord_ErasedSector(t *testing.T) {
	erased := bytes.Repeat([]byte{0xFF}, recordLen)
	if _, ok := decodeRecord(erased); ok {
		t.Error("An erased sector must never decode as a valid record")
	}
}

func TestDecodeRecord_Zeroed(t *testing.T) {
	if _, ok := decodeRecord(make([]byte, recordLen)); ok {
		t.Error("A zeroed sector must never decode as a valid record")
	}
}

func TestDecodeRecord_BadMagic(t *testing.T) {
	rec := BootRecord{AppType: AppBin, Length: 64, Ready: true}
	enc := rec.Encode()
	enc[0] ^= 0x01
	if _, ok := decodeRecord(enc[:]); ok {
		t.Error("Corrupted magic must invalidate the record")
	}
}

func TestDecodeRecord_BadVersion(t *testing.T) {
	rec := BootRecord{AppType: AppBin, Length: 64, Ready: true}
	enc := rec.Encode()
	enc[4] = recordVersion + 1
	if _, ok := decodeRecord(enc[:]); ok {
		t.Error("Unknown layout version must invalidate the record")
	}
}

func TestDecodeRecord_BadCRC(t *testing.T) {
	rec := BootRecord{AppType: AppBin, Length: 64, Ready: true}
	enc := rec.Encode()
	enc[8] ^= 0x80 // flip a length bit, CRC no longer matches
	if _, ok := decodeRecord(enc[:]); ok {
		t.Error("A payload that fails the CRC must invalidate the record")
	}
}

func TestDecodeRecord_Short(t *testing.T) {
	if _, ok := decodeRecord([]byte{0x43}); ok {
		t.Error("A short buffer must not decode")
	}
}
