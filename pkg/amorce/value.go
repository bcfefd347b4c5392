// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import "strings"

// ChecksumKind selects how uploaded data is verified in transit.
type ChecksumKind byte

const (
	ChecksumNone ChecksumKind = iota
	ChecksumSHA256
	ChecksumCRC32
)

func (k ChecksumKind) String() string {
	switch k {
	case ChecksumNone:
		return TokCksumNone
	case ChecksumSHA256:
		return TokCksumSHA256
	case ChecksumCRC32:
		return TokCksumCRC
	}
	return "unknown"
}

// AppType is the on-wire format of an uploaded application image.
type AppType byte

const (
	AppBin AppType = iota
	AppHex
	AppSrec
)

func (t AppType) String() string {
	switch t {
	case AppBin:
		return TokAppBin
	case AppHex:
		return TokAppHex
	case AppSrec:
		return TokAppSrec
	}
	return "unknown"
}

type eraseType byte

const (
	eraseMass eraseType = iota
	eraseSector
)

// ParseU32 decodes text as an unsigned number in the given base (10 or
// 16). Every character must be a digit of the base and the value must
// fit 32 bits; anything else yields an error rather than a truncated
// result. Prefixes are never stripped here, that is ParseAddr's job.
func ParseU32(s string, base uint32) (uint32, error) {
	if s == "" {
		return 0, ErrNotANumber
	}
	var v uint32
	for i := 0; i < len(s); i++ {
		d, ok := hexDigit(s[i])
		if !ok || uint32(d) >= base {
			return 0, ErrNotANumber
		}
		if v > (1<<32-1-uint32(d))/base {
			return 0, ErrNotANumber
		}
		v = v*base + uint32(d)
	}
	return v, nil
}

// ParseAddr decodes an address parameter. Addresses are always
// hexadecimal, with or without a leading "0x"; an 'x' anywhere else
// marks a malformed prefix.
func ParseAddr(s string) (uint32, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if strings.ContainsAny(s, "xX") {
		return 0, ErrHexPrefix
	}
	return ParseU32(s, 16)
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func parseChecksumKind(s string) (ChecksumKind, error) {
	switch s {
	case TokCksumNone:
		return ChecksumNone, nil
	case TokCksumSHA256:
		return ChecksumSHA256, nil
	case TokCksumCRC:
		return ChecksumCRC32, nil
	}
	return 0, ErrUnsupportedChecksum
}

func parseAppType(s string) (AppType, error) {
	switch s {
	case TokAppBin:
		return AppBin, nil
	case TokAppHex:
		return AppHex, nil
	case TokAppSrec:
		return AppSrec, nil
	}
	return 0, ErrAppType
}

func parseEraseType(s string) (eraseType, error) {
	switch s {
	case TokEraseMass:
		return eraseMass, nil
	case TokEraseSector:
		return eraseSector, nil
	}
	return 0, ErrInvalidEraseType
}

func parseForce(s string) (bool, error) {
	switch s {
	case TokForceTrue:
		return true, nil
	case TokForceFalse:
		return false, nil
	}
	return false, ErrForceParam
}
