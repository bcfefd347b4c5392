// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package icusim

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/braise/pkg/amorce"
)

// State directory layout: the raw flash image next to a CBOR record of
// everything that lives outside the flash array.
const (
	flashImageName = "flash.bin"
	stateFileName  = "device.cbor"
)

// deviceState is the CBOR sidecar, integer-keyed to keep it compact.
type deviceState struct {
	RDP      byte     `cbor:"1,keyasint"`
	ProtMask uint32   `cbor:"2,keyasint"`
	Restarts int      `cbor:"3,keyasint"`
	Device   uint32   `cbor:"4,keyasint"`
	Revision uint32   `cbor:"5,keyasint"`
	Unique   []byte   `cbor:"6,keyasint"`
	OTP      [][]byte `cbor:"7,keyasint"`
	OTPLock  []bool   `cbor:"8,keyasint"`
}

// Save writes the flash image and device state into dir, creating it if
// needed. A saved device survives serve restarts, so staged firmware and
// option bytes behave like real non-volatile storage.
func (d *Device) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	d.mu.Lock()
	flash := make([]byte, len(d.flash))
	copy(flash, d.flash)
	st := deviceState{
		RDP:      d.rdp,
		ProtMask: d.protMask,
		Restarts: d.restarts,
		Device:   d.id.Device,
		Revision: d.id.Revision,
		Unique:   append([]byte(nil), d.id.Unique[:]...),
		OTP:      make([][]byte, OTPBlocks),
		OTPLock:  append([]bool(nil), d.otpLock[:]...),
	}
	for b := range d.otp {
		st.OTP[b] = append([]byte(nil), d.otp[b][:]...)
	}
	d.mu.Unlock()

	if err := os.WriteFile(filepath.Join(dir, flashImageName), flash, 0o644); err != nil {
		return fmt.Errorf("failed to write flash image: %w", err)
	}
	enc, err := cbor.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode device state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stateFileName), enc, 0o644); err != nil {
		return fmt.Errorf("failed to write device state: %w", err)
	}
	return nil
}

// Restore loads a previously saved device from dir. A missing directory or
// missing files leave the device untouched and report (false, nil) so a
// first run starts blank without special-casing.
func (d *Device) Restore(dir string) (bool, error) {
	flash, err := os.ReadFile(filepath.Join(dir, flashImageName))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read flash image: %w", err)
	}
	if uint32(len(flash)) != amorce.FlashSize {
		return false, fmt.Errorf("flash image is %d bytes, expected %d", len(flash), amorce.FlashSize)
	}

	enc, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read device state: %w", err)
	}
	var st deviceState
	if err := cbor.Unmarshal(enc, &st); err != nil {
		return false, fmt.Errorf("failed to decode device state: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.flash, flash)
	d.rdp = st.RDP
	d.protMask = st.ProtMask
	d.restarts = st.Restarts
	d.id.Device = st.Device
	d.id.Revision = st.Revision
	copy(d.id.Unique[:], st.Unique)
	for b := 0; b < OTPBlocks && b < len(st.OTP); b++ {
		copy(d.otp[b][:], st.OTP[b])
	}
	for b := 0; b < OTPBlocks && b < len(st.OTPLock); b++ {
		d.otpLock[b] = st.OTPLock[b]
	}
	return true, nil
}
