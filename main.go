// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Braise - Amorce Bootloader Host Tool
//
// A CLI for driving the Amorce bootloader shell on ICU devices: flashing,
// updating and inspecting firmware over serial or WebSocket, plus a
// simulated device to run it all against.

package main

import (
	"os"

	"github.com/Thermoquad/braise/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
