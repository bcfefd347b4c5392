// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

// Memory map of the ICU target (STM32F407 class, 1 MiB flash in twelve
// sectors). Sectors 0-2 hold the bootloader itself, sector 3 the boot
// record, sectors 4-7 the active application and sectors 8-10 the staging
// area new applications are uploaded into.
const (
	FlashBase uint32 = 0x08000000
	FlashSize uint32 = 1024 * 1024

	SectorTotal = 12

	BootRecordSector        = 3
	BootRecordAddr   uint32 = 0x0800C000

	ActiveAppSector        = 4
	ActiveAppSectors       = 4
	ActiveAppAddr   uint32 = 0x08010000

	StagingSector        = 8
	StagingSectors       = 3
	StagingAddr   uint32 = 0x08080000

	// MaxNewAppLen is the staging capacity: three 128 KiB sectors.
	MaxNewAppLen uint32 = 3 * 128 * 1024
)

// FlashRegion is a named address range used for validation predicates.
type FlashRegion struct {
	Name string
	Base uint32
	Size uint32
}

// Contains reports whether addr falls inside the region.
func (r FlashRegion) Contains(addr uint32) bool {
	return addr >= r.Base && addr-r.Base < r.Size
}

// ContainsRange reports whether the n bytes starting at addr all fall
// inside the region. A range that would wrap the address space does not.
func (r FlashRegion) ContainsRange(addr, n uint32) bool {
	return r.Contains(addr) && n <= r.Size-(addr-r.Base)
}

// regionSet is the jump and write validation domain for one session. The
// base set is fixed by the chip; external memory joins it only when the
// session is configured with one mapped.
type regionSet struct {
	flash   FlashRegion
	regions []FlashRegion
}

func defaultRegions() regionSet {
	flash := FlashRegion{Name: "FLASH", Base: FlashBase, Size: FlashSize}
	return regionSet{
		flash: flash,
		regions: []FlashRegion{
			flash,
			{Name: "CCMRAM", Base: 0x10000000, Size: 64 * 1024},
			{Name: "SRAM1", Base: 0x20000000, Size: 112 * 1024},
			{Name: "SRAM2", Base: 0x2001C000, Size: 16 * 1024},
			{Name: "BKPSRAM", Base: 0x40024000, Size: 4 * 1024},
			{Name: "SYSMEM", Base: 0x1FFF0000, Size: 30 * 1024},
		},
	}
}

func (s *regionSet) add(r FlashRegion) {
	s.regions = append(s.regions, r)
}

// jumpTarget reports whether addr is inside any configured region.
func (s *regionSet) jumpTarget(addr uint32) bool {
	for _, r := range s.regions {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// writeTarget reports whether the n-byte range starting at addr lies
// entirely within the flash region.
func (s *regionSet) writeTarget(addr, n uint32) bool {
	return s.flash.ContainsRange(addr, n)
}

// readTarget reports whether the n-byte range starting at addr lies
// entirely within a single configured region.
func (s *regionSet) readTarget(addr, n uint32) bool {
	for _, r := range s.regions {
		if r.ContainsRange(addr, n) {
			return true
		}
	}
	return false
}

// lookup returns the region containing addr.
func (s *regionSet) lookup(addr uint32) (FlashRegion, bool) {
	for _, r := range s.regions {
		if r.Contains(addr) {
			return r, true
		}
	}
	return FlashRegion{}, false
}

var sectorSizes = [SectorTotal]uint32{
	16 * 1024, 16 * 1024, 16 * 1024, 16 * 1024,
	64 * 1024,
	128 * 1024, 128 * 1024, 128 * 1024, 128 * 1024,
	128 * 1024, 128 * 1024, 128 * 1024,
}

// SectorSize returns the size of flash sector n.
func SectorSize(n int) uint32 {
	return sectorSizes[n]
}

// SectorBase returns the start address of flash sector n.
func SectorBase(n int) uint32 {
	addr := FlashBase
	for i := 0; i < n; i++ {
		addr += sectorSizes[i]
	}
	return addr
}

// validateSectorRange checks a sector-erase request against the chip
// geometry. The whole run [sect, sect+count) must exist.
func validateSectorRange(sect, count uint32) error {
	if count == 0 || count > SectorTotal {
		return ErrInvalidSectorCount
	}
	if sect > SectorTotal-count {
		return ErrInvalidSectorCount
	}
	return nil
}

// validateSectorMask checks a write-protection bitmask: only bits for
// sectors that exist may be set.
func validateSectorMask(mask uint32) error {
	if mask>>SectorTotal != 0 {
		return ErrInvalidSector
	}
	return nil
}
