// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import "strings"

const greeting = crlf +
	"*********************************************" + crlf +
	"   Amorce bootloader for Thermoquad ICU" + crlf +
	"*********************************************" + crlf +
	"                 " + Version + crlf +
	"*********************************************" + crlf +
	"         If confused type \"help\"" + crlf +
	"*********************************************" + crlf

// builtinCommands is the full command set, in help display order. The
// dispatch registry is built from this list once per session. It is
// assigned in init to break the initializer cycle through cmdHelp and
// helpText.
var builtinCommands []command

func init() {
	builtinCommands = []command{
		{
			name:  CmdVersion,
			usage: "version",
			brief: "Display the bootloader version",
			run:   cmdVersion,
		},
		{
			name:  CmdHelp,
			usage: "help",
			brief: "Display this message",
			run:   cmdHelp,
		},
		{
			name:  CmdCID,
			usage: "cid",
			brief: "Display the chip and unique device identification",
			run:   cmdCID,
		},
		{
			name:  CmdGetRDPLevel,
			usage: "get-rdp-level",
			brief: "Display the flash readout protection level",
			run:   cmdGetRDPLevel,
		},
		{
			name:  CmdJumpTo,
			usage: "jump-to addr=<hex>",
			brief: "Hand control to the code at the given address",
			run:   cmdJumpTo,
		},
		{
			name:  CmdFlashErase,
			usage: "flash-erase type=mass|sector [sector=<dec> count=<dec>]",
			brief: "Erase the whole array or a run of sectors",
			run:   cmdFlashErase,
		},
		{
			name:  CmdFlashWrite,
			usage: "flash-write start=<hex> count=<dec> [cksum=sha256|crc|no]",
			brief: "Write count raw bytes to flash, sent after \"ready\"",
			run:   cmdFlashWrite,
		},
		{
			name:  CmdMemRead,
			usage: "mem-read start=<hex> count=<dec>",
			brief: "Read count raw bytes from any mapped memory",
			run:   cmdMemRead,
		},
		{
			name:  CmdEnWriteProt,
			usage: "en-write-prot mask=<hex>",
			brief: "Enable write protection per sector mask bit",
			run:   cmdEnWriteProt,
		},
		{
			name:  CmdDisWriteProt,
			usage: "dis-write-prot mask=<hex>",
			brief: "Disable write protection per sector mask bit",
			run:   cmdDisWriteProt,
		},
		{
			name:  CmdReadSectorStatus,
			usage: "read-sector-status",
			brief: "Display the write protection of every sector",
			run:   cmdReadSectorStatus,
		},
		{
			name:  CmdGetOTP,
			usage: "get-otp [block=<dec>]",
			brief: "Display one-time-programmable blocks",
			run:   cmdGetOTP,
		},
		{
			name:  CmdUpdateNew,
			usage: "update-new count=<dec> [type=bin|hex|srec] [cksum=sha256|crc|no]",
			brief: "Stage a new application image and restart",
			run:   cmdUpdateNew,
		},
		{
			name:  CmdUpdateAct,
			usage: "update-act [force=true|false]",
			brief: "Activate the staged application image",
			run:   cmdUpdateAct,
		},
		{
			name:  CmdExit,
			usage: "exit",
			brief: "Exit the bootloader shell",
			run:   cmdExit,
		},
		{
			name:  CmdReset,
			usage: "reset",
			brief: "Restart the device",
			run:   cmdReset,
		},
	}
}

// helpText renders the command list for the help command.
func helpText() string {
	var b strings.Builder
	b.WriteString("Supported commands:" + crlf)
	for _, c := range builtinCommands {
		b.WriteString("  " + c.usage + crlf)
		b.WriteString("      " + c.brief + crlf)
	}
	b.WriteString("Commands are lines of the form <name> [key=value]..., " +
		"terminated by CRLF." + crlf)
	return b.String()
}
