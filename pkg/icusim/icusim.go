// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package icusim simulates the flash, memory map and system registers of
// the ICU's STM32F407 closely enough to host a full amorce shell session.
// It backs the serve command and the package tests, so firmware workflows
// can be exercised without a board on the bench.
package icusim

import (
	"sync"

	"github.com/Thermoquad/braise/pkg/amorce"
)

// RAM and system memory ranges of the simulated part.
const (
	ccmBase   uint32 = 0x10000000
	ccmSize   uint32 = 64 * 1024
	sram1Base uint32 = 0x20000000
	sram1Size uint32 = 112 * 1024
	sram2Base uint32 = 0x2001C000
	sram2Size uint32 = 16 * 1024
	bkpBase   uint32 = 0x40024000
	bkpSize   uint32 = 4 * 1024
	sysBase   uint32 = 0x1FFF0000
	sysSize   uint32 = 30 * 1024
)

// OTP geometry: 16 blocks of 32 bytes, one lock byte each.
const (
	OTPBlocks    = 16
	OTPBlockSize = 32
)

// Defaults reported by ChipID until a saved state overrides them.
const (
	defaultDeviceID uint32 = 0x0413
	defaultRevision uint32 = 0x1001
)

type bank struct {
	name string
	base uint32
	data []byte
}

// Device is one simulated ICU. All methods are safe for concurrent use;
// the shell session, the status poller and persistence may touch the
// device from different goroutines.
type Device struct {
	mu sync.Mutex

	flash []byte
	banks []bank

	unlocked bool
	rdp      byte
	protMask uint32
	otp      [OTPBlocks][OTPBlockSize]byte
	otpLock  [OTPBlocks]bool

	id amorce.ChipID

	restarts int
	jumped   bool
	jumpAddr uint32
	vtor     uint32
	msp      uint32
	irqOff   bool
	tickOff  bool

	leds map[amorce.Led]bool

	// OnRestart fires on Restart and Call, after internal state is
	// updated.
	OnRestart func()

	// OnLed fires on every LED transition.
	OnLed func(led amorce.Led, on bool)
}

// New returns a device with blank flash, zeroed RAM and default IDs.
func New() *Device {
	d := &Device{
		flash: make([]byte, amorce.FlashSize),
		rdp:   0,
		id: amorce.ChipID{
			Device:   defaultDeviceID,
			Revision: defaultRevision,
			Unique:   [12]byte{0x54, 0x51, 0x49, 0x43, 0x55, 0x00, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36},
		},
		leds: make(map[amorce.Led]bool),
	}
	for i := range d.flash {
		d.flash[i] = 0xFF
	}
	for b := range d.otp {
		for i := range d.otp[b] {
			d.otp[b][i] = 0xFF
		}
	}
	d.banks = []bank{
		{name: "FLASH", base: amorce.FlashBase, data: d.flash},
		{name: "CCMRAM", base: ccmBase, data: make([]byte, ccmSize)},
		{name: "SRAM1", base: sram1Base, data: make([]byte, sram1Size)},
		{name: "SRAM2", base: sram2Base, data: make([]byte, sram2Size)},
		{name: "BKPSRAM", base: bkpBase, data: make([]byte, bkpSize)},
		{name: "SYSMEM", base: sysBase, data: make([]byte, sysSize)},
	}
	return d
}

// AddExternalBank maps an extra memory bank, matching a session configured
// with amorce.WithExternalMemory at the same range.
func (d *Device) AddExternalBank(base, size uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.banks = append(d.banks, bank{name: "EXTMEM", base: base, data: make([]byte, size)})
}

// Hardware bundles the device's interfaces for amorce.NewSession.
func (d *Device) Hardware() amorce.Hardware {
	return amorce.Hardware{
		Flash:   d,
		Memory:  d,
		System:  d,
		Options: d,
		Leds:    d,
	}
}

// findBank returns the bank containing addr, or nil.
func (d *Device) findBank(addr uint32) *bank {
	for i := range d.banks {
		b := &d.banks[i]
		if addr >= b.base && addr-b.base < uint32(len(b.data)) {
			return b
		}
	}
	return nil
}

// ============================================================
// FlashController
// ============================================================

func (d *Device) Unlock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rdp == 2 {
		return amorce.ErrHALUnlock
	}
	d.unlocked = true
	return nil
}

func (d *Device) Lock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unlocked = false
	return nil
}

func (d *Device) EraseSectors(first, count int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.unlocked {
		return amorce.ErrHALErase
	}
	if first < 0 || count < 1 || first+count > amorce.SectorTotal {
		return amorce.ErrInvalidSectorCount
	}
	for s := first; s < first+count; s++ {
		if d.protMask&(1<<uint(s)) != 0 {
			return amorce.ErrHALSector
		}
	}
	for s := first; s < first+count; s++ {
		base := amorce.SectorBase(s) - amorce.FlashBase
		for i := uint32(0); i < amorce.SectorSize(s); i++ {
			d.flash[base+i] = 0xFF
		}
	}
	return nil
}

func (d *Device) MassErase() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.unlocked {
		return amorce.ErrHALErase
	}
	if d.protMask != 0 {
		return amorce.ErrHALSector
	}
	for i := range d.flash {
		d.flash[i] = 0xFF
	}
	return nil
}

func (d *Device) Program(addr uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.unlocked {
		return amorce.ErrHALWrite
	}
	if addr < amorce.FlashBase || uint32(len(data)) > amorce.FlashSize-(addr-amorce.FlashBase) {
		return amorce.ErrHALWrite
	}
	for i := range data {
		off := addr - amorce.FlashBase + uint32(i)
		if d.protMask&(1<<uint(sectorOf(off))) != 0 {
			return amorce.ErrHALSector
		}
		// Programming only clears bits; erase is the only way back to 0xFF.
		d.flash[off] &= data[i]
	}
	return nil
}

// sectorOf maps a flash offset to its sector number.
func sectorOf(off uint32) int {
	for s := 0; s < amorce.SectorTotal; s++ {
		base := amorce.SectorBase(s) - amorce.FlashBase
		if off >= base && off-base < amorce.SectorSize(s) {
			return s
		}
	}
	return amorce.SectorTotal - 1
}

// ============================================================
// MemoryReader
// ============================================================

func (d *Device) ReadMemory(addr uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.findBank(addr)
	if b == nil || uint32(len(buf)) > uint32(len(b.data))-(addr-b.base) {
		return amorce.ErrInvalidParam
	}
	copy(buf, b.data[addr-b.base:])
	return nil
}

// Poke writes directly into any mapped bank, bypassing flash programming
// rules. Test and serve setup only.
func (d *Device) Poke(addr uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.findBank(addr)
	if b == nil || uint32(len(data)) > uint32(len(b.data))-(addr-b.base) {
		return amorce.ErrInvalidParam
	}
	copy(b.data[addr-b.base:], data)
	return nil
}

// ============================================================
// SystemController
// ============================================================

func (d *Device) Restart() {
	d.mu.Lock()
	d.restarts++
	d.unlocked = false
	d.irqOff = false
	d.tickOff = false
	for led := range d.leds {
		d.leds[led] = false
	}
	cb := d.OnRestart
	d.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (d *Device) DisableInterrupts() {
	d.mu.Lock()
	d.irqOff = true
	d.mu.Unlock()
}

func (d *Device) StopSysTick() {
	d.mu.Lock()
	d.tickOff = true
	d.mu.Unlock()
}

func (d *Device) SetVectorTable(addr uint32) {
	d.mu.Lock()
	d.vtor = addr
	d.mu.Unlock()
}

func (d *Device) SetMainStack(addr uint32) {
	d.mu.Lock()
	d.msp = addr
	d.mu.Unlock()
}

func (d *Device) Call(addr uint32) {
	d.mu.Lock()
	d.jumped = true
	d.jumpAddr = addr
	cb := d.OnRestart
	d.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (d *Device) ChipID() (amorce.ChipID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id, nil
}

// ============================================================
// OptionBytes
// ============================================================

func (d *Device) RDPLevel() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rdp, nil
}

// SetRDPLevel changes the readout protection level directly. Level 2 is
// permanent on hardware; the simulator allows it back down for reuse.
func (d *Device) SetRDPLevel(level byte) {
	d.mu.Lock()
	d.rdp = level
	d.mu.Unlock()
}

func (d *Device) WriteProtection() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.protMask, nil
}

func (d *Device) SetWriteProtection(mask uint32, enable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rdp == 2 {
		return amorce.ErrHALWrite
	}
	if enable {
		d.protMask |= mask
	} else {
		d.protMask &^= mask
	}
	return nil
}

func (d *Device) OTP(block int) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if block < 0 || block >= OTPBlocks {
		return nil, false, amorce.ErrInvalidParam
	}
	out := make([]byte, OTPBlockSize)
	copy(out, d.otp[block][:])
	return out, d.otpLock[block], nil
}

// ProgramOTP writes a block and optionally locks it. Like flash, OTP bits
// only clear. A locked block rejects further writes.
func (d *Device) ProgramOTP(block int, data []byte, lock bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if block < 0 || block >= OTPBlocks || len(data) > OTPBlockSize {
		return amorce.ErrInvalidParam
	}
	if d.otpLock[block] {
		return amorce.ErrHALWrite
	}
	for i, v := range data {
		d.otp[block][i] &= v
	}
	if lock {
		d.otpLock[block] = true
	}
	return nil
}

// ============================================================
// Indicator
// ============================================================

func (d *Device) LedOn(led amorce.Led) {
	d.setLed(led, true)
}

func (d *Device) LedOff(led amorce.Led) {
	d.setLed(led, false)
}

func (d *Device) setLed(led amorce.Led, on bool) {
	d.mu.Lock()
	changed := d.leds[led] != on
	d.leds[led] = on
	cb := d.OnLed
	d.mu.Unlock()
	if changed && cb != nil {
		cb(led, on)
	}
}

// ============================================================
// Inspection
// ============================================================

// Restarts returns how many times the device has reset.
func (d *Device) Restarts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restarts
}

// LastJump reports the most recent user-application entry address, if any.
func (d *Device) LastJump() (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.jumpAddr, d.jumped
}

// LedState reports whether a status LED is currently lit.
func (d *Device) LedState(led amorce.Led) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.leds[led]
}
