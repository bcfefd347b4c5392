// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package amorce implements the Amorce bootloader command shell for ICU
// devices.
//
// Amorce is the line-oriented maintenance protocol spoken by the ICU boot
// stage: the host sends textual commands ("flash-write start=0x08010000
// count=1024"), the bootloader answers with text and a fixed OK/ERROR
// token. This package contains the full shell engine: command parsing,
// dispatch, the flash update pipeline, boot record bookkeeping, and the
// user-application handoff, all driven through narrow hardware interfaces
// so the same engine runs on a simulated ICU as on the real boot stage.
package amorce

// Version is the bootloader shell version reported by the version command.
const Version = "v1.1.0"

// Line protocol framing
const (
	// CmdBufSize is the receive buffer for one command line. A line must
	// fit, terminator included, or the command is rejected as too long.
	CmdBufSize = 128

	// ChunkSize is the staging buffer for flash uploads. Writes larger
	// than one chunk are split; each chunk carries its own checksum
	// trailer on the wire.
	ChunkSize = 1024

	// MaxArgs is the most key=value pairs one command line may carry.
	MaxArgs = 10
)

// Response literals. Every successful command ends with TxtSuccess; every
// reported error is a single TxtErrorPrefix line.
const (
	TxtSuccess     = "\r\nOK\r\n"
	TxtErrorPrefix = "\r\nERROR: "
	TxtReady       = "\r\nready\r\n"
	TxtPrompt      = "\r\n> "
	TxtFarewell    = "Exiting\r\n\r\n"
	crlf           = "\r\n"
)

// Command keywords
const (
	CmdVersion          = "version"
	CmdHelp             = "help"
	CmdReset            = "reset"
	CmdCID              = "cid"
	CmdExit             = "exit"
	CmdJumpTo           = "jump-to"
	CmdFlashErase       = "flash-erase"
	CmdFlashWrite       = "flash-write"
	CmdMemRead          = "mem-read"
	CmdGetRDPLevel      = "get-rdp-level"
	CmdEnWriteProt      = "en-write-prot"
	CmdDisWriteProt     = "dis-write-prot"
	CmdReadSectorStatus = "read-sector-status"
	CmdGetOTP           = "get-otp"
	CmdUpdateNew        = "update-new"
	CmdUpdateAct        = "update-act"
)

// Parameter keywords
const (
	ParAddr   = "addr"
	ParStart  = "start"
	ParCount  = "count"
	ParCksum  = "cksum"
	ParType   = "type"
	ParSector = "sector"
	ParMask   = "mask"
	ParForce  = "force"
	ParBlock  = "block"
)

// Enum tokens. Matching is exact and case-sensitive; unrecognized text is
// a decode error, never a default.
const (
	TokEraseMass   = "mass"
	TokEraseSector = "sector"
	TokCksumSHA256 = "sha256"
	TokCksumCRC    = "crc"
	TokCksumNone   = "no"
	TokAppBin      = "bin"
	TokAppHex      = "hex"
	TokAppSrec     = "srec"
	TokForceTrue   = "true"
	TokForceFalse  = "false"
)

type shellState int

// Shell states. Operation reads and dispatches commands, Error reports a
// pending error condition, Exit ends the session.
const (
	stateOperation shellState = iota
	stateError
	stateExit
)

// Led identifies a status indicator on the board.
type Led int

// Status indicators. The power LED burns for the whole session; ready
// burns while waiting for a line, busy while a command executes, memory
// during flash programming.
const (
	LedPower Led = iota
	LedReady
	LedBusy
	LedMemory
)

func (l Led) String() string {
	switch l {
	case LedPower:
		return "power"
	case LedReady:
		return "ready"
	case LedBusy:
		return "busy"
	case LedMemory:
		return "memory"
	}
	return "unknown"
}

// ChecksumPolicy selects what the write pipeline does when a chunk fails
// checksum verification.
type ChecksumPolicy int

const (
	// PolicyWarn logs the mismatch and programs the chunk anyway. This
	// matches the historical shell behavior the help text warns about.
	PolicyWarn ChecksumPolicy = iota

	// PolicyReject aborts the upload before programming the bad chunk.
	PolicyReject
)
