// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

// FlashController programs and erases the on-chip flash array. Program
// assumes the target range was erased first; flash bits only clear.
type FlashController interface {
	// Unlock opens the flash control registers for writing. Erase and
	// Program calls are only valid between Unlock and Lock.
	Unlock() error

	// Lock closes the flash control registers again.
	Lock() error

	// EraseSectors erases count consecutive sectors starting at first.
	EraseSectors(first, count int) error

	// MassErase erases the entire array.
	MassErase() error

	// Program writes data starting at addr.
	Program(addr uint32, data []byte) error
}

// MemoryReader reads any mapped address range, flash or RAM.
type MemoryReader interface {
	ReadMemory(addr uint32, buf []byte) error
}

// ChipID identifies the MCU die.
type ChipID struct {
	Device   uint32
	Revision uint32
	Unique   [12]byte
}

// SystemController owns reset and the register-level steps of the
// user-application handoff. On hardware Restart and Call never return;
// simulators model both as session-ending events.
type SystemController interface {
	Restart()
	DisableInterrupts()
	StopSysTick()
	SetVectorTable(addr uint32)
	SetMainStack(addr uint32)
	Call(addr uint32)
	ChipID() (ChipID, error)
}

// OptionBytes exposes the option-byte block. The write-protection mask
// has bit n set when sector n is protected.
type OptionBytes interface {
	RDPLevel() (byte, error)
	WriteProtection() (uint32, error)
	SetWriteProtection(mask uint32, enable bool) error

	// OTP returns the contents of one one-time-programmable block and
	// whether the block is locked.
	OTP(block int) ([]byte, bool, error)
}

// Indicator drives the board status LEDs.
type Indicator interface {
	LedOn(Led)
	LedOff(Led)
}

// Hardware bundles the device interfaces one shell session drives. Flash,
// Memory and System are required; Options and Leds may be nil, in which
// case the option-byte commands report not implemented and LED calls are
// dropped.
type Hardware struct {
	Flash   FlashController
	Memory  MemoryReader
	System  SystemController
	Options OptionBytes
	Leds    Indicator
}

type noopIndicator struct{}

func (noopIndicator) LedOn(Led)  {}
func (noopIndicator) LedOff(Led) {}
