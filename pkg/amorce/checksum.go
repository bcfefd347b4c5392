// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"hash/crc32"
)

// TrailerLen returns the number of checksum bytes that follow each data
// chunk of an upload using the given kind.
func TrailerLen(k ChecksumKind) int {
	switch k {
	case ChecksumSHA256:
		return sha256.Size
	case ChecksumCRC32:
		return 4
	}
	return 0
}

// Trailer computes the checksum trailer a sender must append to one data
// chunk. CRC32 trailers are little-endian IEEE checksums; SHA-256 trailers
// are the raw digest. ChecksumNone yields nil.
func Trailer(k ChecksumKind, data []byte) []byte {
	switch k {
	case ChecksumSHA256:
		sum := sha256.Sum256(data)
		return sum[:]
	case ChecksumCRC32:
		t := make([]byte, 4)
		binary.LittleEndian.PutUint32(t, crc32.ChecksumIEEE(data))
		return t
	}
	return nil
}

// verifyChunk checks one received data chunk against its trailer.
func verifyChunk(k ChecksumKind, data, trailer []byte) error {
	switch k {
	case ChecksumNone:
		return nil
	case ChecksumSHA256:
		if len(trailer) != sha256.Size {
			return ErrSHA256Len
		}
		sum := sha256.Sum256(data)
		if subtle.ConstantTimeCompare(sum[:], trailer) != 1 {
			return ErrChecksumMismatch
		}
		return nil
	case ChecksumCRC32:
		if len(trailer) != 4 {
			return ErrCRCLen
		}
		if crc32.ChecksumIEEE(data) != binary.LittleEndian.Uint32(trailer) {
			return ErrChecksumMismatch
		}
		return nil
	}
	return ErrUnsupportedChecksum
}
