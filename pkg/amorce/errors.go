// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

// ErrCode is the closed set of shell error conditions. Every command
// handler returns an ErrCode (or nil); no other error type crosses the
// dispatcher. The set is partitioned into user-input validation failures,
// hardware-layer wrappers, and internal conditions; the Error state maps
// each variant to a response and a recoverability verdict.
type ErrCode int

const (
	// User input and protocol
	ErrCmdTooShort ErrCode = iota + 1
	ErrCmdUndefined
	ErrNeedParam
	ErrJumpInvalidAddr
	ErrInvalidSector
	ErrInvalidSectorCount
	ErrWriteInvalidAddr
	ErrInvalidSize
	ErrInvalidEraseType
	ErrNotANumber
	ErrHexPrefix
	ErrChecksumMismatch
	ErrUnsupportedChecksum
	ErrCRCLen
	ErrSHA256Len
	ErrNewAppTooLong
	ErrAppType
	ErrForceParam
	ErrInvalidSrec
	ErrSrecFunction
	ErrInvalidHexChar
	ErrSegmentation
	ErrIHexFunction
	ErrInvalidIHex
	ErrReadOverflow

	// Hardware layer
	ErrHALWrite
	ErrHALErase
	ErrHALUnlock
	ErrHALTx
	ErrHALRx
	ErrRxAbort
	ErrHALSector

	// Internal
	ErrWrite
	ErrState
	ErrCmdCode
	ErrNullParam
	ErrInvalidParam
	ErrNotImplemented
)

var errNames = map[ErrCode]string{
	ErrCmdTooShort:         "command too short",
	ErrCmdUndefined:        "command undefined",
	ErrNeedParam:           "missing parameter",
	ErrJumpInvalidAddr:     "invalid jump address",
	ErrInvalidSector:       "invalid sector",
	ErrInvalidSectorCount:  "invalid sector count",
	ErrWriteInvalidAddr:    "invalid write address range",
	ErrInvalidSize:         "invalid length",
	ErrInvalidEraseType:    "invalid erase type",
	ErrNotANumber:          "not a number",
	ErrHexPrefix:           "malformed hex prefix",
	ErrChecksumMismatch:    "checksum mismatch",
	ErrUnsupportedChecksum: "unsupported checksum",
	ErrCRCLen:              "invalid length for crc32",
	ErrSHA256Len:           "invalid length for sha256",
	ErrNewAppTooLong:       "new application too long",
	ErrAppType:             "invalid application type",
	ErrForceParam:          "invalid force parameter",
	ErrInvalidSrec:         "invalid s-record",
	ErrSrecFunction:        "invalid s-record function",
	ErrInvalidHexChar:      "invalid hex character",
	ErrSegmentation:        "segmentation",
	ErrIHexFunction:        "unsupported intel hex function",
	ErrInvalidIHex:         "invalid intel hex contents",
	ErrReadOverflow:        "receive overflow",
	ErrHALWrite:            "hal write failed",
	ErrHALErase:            "hal erase failed",
	ErrHALUnlock:           "hal unlock failed",
	ErrHALTx:               "hal transmit failed",
	ErrHALRx:               "hal receive failed",
	ErrRxAbort:             "receive aborted",
	ErrHALSector:           "sector erase bookkeeping failed",
	ErrWrite:               "write failed",
	ErrState:               "invalid shell state",
	ErrCmdCode:             "command code without handler",
	ErrNullParam:           "nil parameter",
	ErrInvalidParam:        "invalid parameter for function",
	ErrNotImplemented:      "not implemented",
}

func (e ErrCode) Error() string {
	if s, ok := errNames[e]; ok {
		return s
	}
	return "unknown error code"
}

// responseText returns the host-visible message for an error code and
// whether the code is reported at all. Codes with report=false are logged
// on the device but produce no ERROR line; the host just sees the next
// prompt. The returned message carries no framing; the Error state wraps
// it into a "\r\nERROR: ...\r\n" line.
//
// Codes absent from this table take the unhandled-error path: logged,
// unreported, non-fatal.
func responseText(e ErrCode) (msg string, report bool, known bool) {
	switch e {
	case ErrCmdTooShort, ErrWrite, ErrState, ErrHALTx, ErrHALRx,
		ErrRxAbort, ErrInvalidParam:
		return "", false, true
	case ErrReadOverflow:
		return "Command too long", true, true
	case ErrCmdUndefined:
		return "Invalid command", true, true
	case ErrNeedParam:
		return "Missing parameter(s)", true, true
	case ErrJumpInvalidAddr:
		return "Invalid address" + crlf +
			"Jumpable regions: FLASH, SRAM1, SRAM2, CCMRAM, BKPSRAM, " +
			"SYSMEM and EXTMEM (if connected)", true, true
	case ErrHALSector:
		return "Internal error while erasing sectors", true, true
	case ErrInvalidSector:
		return "Wrong sector given", true, true
	case ErrInvalidSectorCount:
		return "Wrong sector count given", true, true
	case ErrWriteInvalidAddr:
		return "Invalid address range entered", true, true
	case ErrInvalidSize:
		return "Invalid length", true, true
	case ErrHALWrite:
		return "Error while writing to flash. Retry last message.", true, true
	case ErrInvalidEraseType:
		return "Invalid erase type", true, true
	case ErrHALErase:
		return "HAL error while erasing sectors", true, true
	case ErrHALUnlock:
		return "Unlocking flash failed", true, true
	case ErrNotANumber:
		return "Number parameter contains letters", true, true
	case ErrHexPrefix:
		return "Number parameter must have '0' at the start when 'x' is present", true, true
	case ErrChecksumMismatch:
		return "Data corrupted during transport (Invalid checksum). Retry last message.", true, true
	case ErrUnsupportedChecksum:
		return "Requested checksum not supported", true, true
	case ErrCRCLen:
		return "Length for CRC32 must be divisible by 4", true, true
	case ErrSHA256Len:
		return "Invalid length for sha256", true, true
	case ErrNewAppTooLong:
		return "New app is too long. Aborting", true, true
	case ErrNotImplemented:
		return "Requested action is not implemented", true, true
	case ErrAppType:
		return "Invalid user application type", true, true
	case ErrNullParam:
		return "NULL sent as a parameter of a function", true, true
	case ErrForceParam:
		return "Invalid force parameter", true, true
	case ErrInvalidSrec:
		return "Invalid S-record file", true, true
	case ErrSrecFunction:
		return "Invalid S-record function", true, true
	case ErrInvalidHexChar:
		return "Invalid hex value character", true, true
	case ErrSegmentation:
		return "Segmentation", true, true
	case ErrIHexFunction:
		return "Unsupported Intel hex function", true, true
	case ErrInvalidIHex:
		return "Invalid contents of intel hex", true, true
	}
	return "", false, false
}
