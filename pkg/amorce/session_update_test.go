// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
)

// ============================================================
// Update Staging Tests
// ============================================================

func TestSession_UpdateNew_StagesAndRestarts(t *testing.T) {
	hw := newFakeHW()
	host, _, done := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x10, 0x20, 0x30, 0x40}
	sendLine(t, host, "update-new count=8 type=bin cksum=crc")
	readUntil(t, host, TxtReady)
	sendRaw(t, host, append(payload, Trailer(ChecksumCRC32, payload)...))
	out := readUntil(t, host, "Restarting...")
	if !strings.Contains(out, TxtSuccess) {
		t.Error("Staging must confirm with OK before restarting")
	}
	waitDone(t, done, false)

	if hw.restarts != 1 {
		t.Fatalf("Expected 1 restart, got %d", hw.restarts)
	}
	if !bytes.Equal(hw.flashAt(StagingAddr, 8), payload) {
		t.Error("Image did not land in the staging sectors")
	}

	rec, ok := LoadBootRecord(hw)
	if !ok {
		t.Fatal("Staging must commit a valid boot record")
	}
	want := BootRecord{AppType: AppBin, Checksum: ChecksumCRC32, Length: 8, Ready: true}
	if rec != want {
		t.Errorf("Boot record mismatch: expected %+v, got %+v", want, rec)
	}
}

func TestSession_UpdateNew_TooLong(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "update-new count=393217")
	out := readUntil(t, host, TxtPrompt)
	if !strings.Contains(out, "ERROR: New app is too long. Aborting") {
		t.Errorf("Expected length report, got %q", out)
	}
}

func TestSession_UpdateNew_MissingCount(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "update-new type=bin")
	out := readUntil(t, host, TxtPrompt)
	if !strings.Contains(out, "ERROR: Missing parameter(s)") {
		t.Errorf("Expected missing parameter report, got %q", out)
	}
}

func TestSession_UpdateNew_BadAppType(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "update-new count=8 type=elf")
	out := readUntil(t, host, TxtPrompt)
	if !strings.Contains(out, "ERROR: Invalid user application type") {
		t.Errorf("Expected app type report, got %q", out)
	}
}

// ============================================================
// Activation Tests
// ============================================================

// stageImage stages payload through a full update-new session.
func stageImage(t *testing.T, hw *fakeHW, appType string, payload []byte) {
	t.Helper()
	host, _, done := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "update-new count="+strconv.Itoa(len(payload))+" type="+appType)
	readUntil(t, host, TxtReady)
	sendRaw(t, host, payload)
	readUntil(t, host, "Restarting...")
	waitDone(t, done, false)
}

func TestSession_AutoActivation(t *testing.T) {
	hw := newFakeHW()
	payload := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF}
	stageImage(t, hw, "bin", payload)

	// The next boot activates the staged image before the first prompt.
	host, _, _ := startSession(t, hw.hardware(), WithAutoActivate(true))
	out := readUntil(t, host, TxtPrompt)
	if !strings.Contains(out, TxtSuccess) {
		t.Error("Auto-activation must confirm with OK before the prompt")
	}

	if !bytes.Equal(hw.flashAt(ActiveAppAddr, 8), payload) {
		t.Error("Activated image did not land in the active sectors")
	}
	rec, ok := LoadBootRecord(hw)
	if !ok {
		t.Fatal("Activation must keep a valid boot record")
	}
	if rec.Ready {
		t.Error("Activation must mark the record consumed")
	}
}

func TestSession_AutoActivation_RunsOnce(t *testing.T) {
	hw := newFakeHW()
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	stageImage(t, hw, "bin", payload)

	host, _, done := startSession(t, hw.hardware(), WithAutoActivate(true))
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "exit")
	readUntil(t, host, TxtFarewell)
	waitDone(t, done, false)
	erasesAfterFirst := len(hw.erases)

	// A consumed record must not activate again on the next boot.
	host, _, done = startSession(t, hw.hardware(), WithAutoActivate(true))
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "exit")
	readUntil(t, host, TxtFarewell)
	waitDone(t, done, false)

	if len(hw.erases) != erasesAfterFirst {
		t.Errorf("Second boot erased again: %v", hw.erases)
	}
}

func TestSession_UpdateAct_NothingStaged(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "update-act")
	out := readUntil(t, host, TxtSuccess)
	if !strings.Contains(out, "No update needed") {
		t.Errorf("Expected idle report, got %q", out)
	}
	if len(hw.erases) != 0 {
		t.Error("Nothing may be erased with no staged image")
	}
}

func TestSession_UpdateAct_ForceNothingStaged(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)

	// force asks to redo an activation, but no image was ever staged.
	sendLine(t, host, "update-act force=true")
	out := readUntil(t, host, TxtPrompt)
	if !strings.Contains(out, "ERROR: NULL sent as a parameter") {
		t.Errorf("Expected refusal, got %q", out)
	}
	if len(hw.erases) != 0 {
		t.Error("Nothing may be erased with no staged image")
	}
}

func TestSession_UpdateAct_Force(t *testing.T) {
	hw := newFakeHW()
	payload := []byte{0x5A, 0x5A, 0x5A, 0x5A}
	stageImage(t, hw, "bin", payload)

	host, _, _ := startSession(t, hw.hardware(), WithAutoActivate(true))
	readUntil(t, host, TxtPrompt)
	erasesAfterBoot := len(hw.erases)

	// Consumed record: a plain update-act is a no-op, force re-activates.
	sendLine(t, host, "update-act")
	readUntil(t, host, TxtSuccess)
	if len(hw.erases) != erasesAfterBoot {
		t.Fatal("Plain update-act must not re-activate a consumed record")
	}

	sendLine(t, host, "update-act force=true")
	out := readUntil(t, host, TxtSuccess)
	if !strings.Contains(out, "Updated active application") {
		t.Errorf("Expected activation report, got %q", out)
	}
	if len(hw.erases) == erasesAfterBoot {
		t.Error("force=true must re-activate")
	}
	if !bytes.Equal(hw.flashAt(ActiveAppAddr, 4), payload) {
		t.Error("Re-activated image did not land")
	}
}

func TestSession_UpdateAct_BadForce(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "update-act force=banana")
	out := readUntil(t, host, TxtPrompt)
	if !strings.Contains(out, "ERROR: Invalid force parameter") {
		t.Errorf("Expected force report, got %q", out)
	}
}

func TestSession_UpdateNew_SrecEndToEnd(t *testing.T) {
	hw := newFakeHW()
	appBytes := []byte("vector-table-here")
	srec := buildSrec(t, ActiveAppAddr, appBytes)
	stageImage(t, hw, "srec", srec)

	host, _, _ := startSession(t, hw.hardware(), WithAutoActivate(true))
	readUntil(t, host, TxtPrompt)

	if !bytes.Equal(hw.flashAt(ActiveAppAddr, uint32(len(appBytes))), appBytes) {
		t.Error("Decoded S-record image did not land at its address")
	}
}

func TestSession_UpdateNew_IntelHexEndToEnd(t *testing.T) {
	hw := newFakeHW()
	appBytes := []byte{0x00, 0x00, 0x02, 0x20, 0x01, 0x01, 0x01, 0x08}
	ihex := buildIntelHex(t, ActiveAppAddr, appBytes)
	stageImage(t, hw, "hex", ihex)

	host, _, _ := startSession(t, hw.hardware(), WithAutoActivate(true))
	readUntil(t, host, TxtPrompt)

	if !bytes.Equal(hw.flashAt(ActiveAppAddr, uint32(len(appBytes))), appBytes) {
		t.Error("Decoded Intel hex image did not land at its address")
	}
}
