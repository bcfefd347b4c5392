// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import "encoding/binary"

// Launch transfers control to the application image at base. The image's
// first word is its initial main stack pointer, the second its reset
// handler. Interrupts are disabled and the vector table rebased before
// the stack switch; on hardware Call never returns.
func Launch(hw Hardware, base uint32) error {
	var vec [8]byte
	if err := hw.Memory.ReadMemory(base, vec[:]); err != nil {
		return halCode(err, ErrSegmentation)
	}
	msp := binary.LittleEndian.Uint32(vec[0:])
	reset := binary.LittleEndian.Uint32(vec[4:])

	hw.System.DisableInterrupts()
	hw.System.SetVectorTable(base)
	hw.System.StopSysTick()
	hw.System.SetMainStack(msp)
	hw.System.Call(reset)
	return nil
}
