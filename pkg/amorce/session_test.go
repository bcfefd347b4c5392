// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Fake Hardware
// ============================================================

// fakeHW models the ICU for session tests: a byte array with sector
// granular erase, AND-style programming, option bytes and a recording
// system controller. Inspect it only after Run has returned.
type fakeHW struct {
	flash [FlashSize]byte

	locked     bool
	unlocks    int
	erases     [][2]int
	massErases int

	protMask uint32
	rdp      byte

	restarts   int
	calls      []uint32
	vtor       uint32
	msp        uint32
	irqOff     bool
	systickOff bool

	leds map[Led]bool
}

func newFakeHW() *fakeHW {
	f := &fakeHW{locked: true, leds: make(map[Led]bool)}
	for i := range f.flash {
		f.flash[i] = 0xFF
	}
	return f
}

func (f *fakeHW) hardware() Hardware {
	return Hardware{Flash: f, Memory: f, System: f, Options: f, Leds: f}
}

// flashAt returns the flash bytes for [addr, addr+n).
func (f *fakeHW) flashAt(addr, n uint32) []byte {
	off := addr - FlashBase
	return f.flash[off : off+n]
}

func (f *fakeHW) seedFlash(addr uint32, data []byte) {
	copy(f.flash[addr-FlashBase:], data)
}

func (f *fakeHW) Unlock() error {
	f.locked = false
	f.unlocks++
	return nil
}

func (f *fakeHW) Lock() error {
	f.locked = true
	return nil
}

func (f *fakeHW) EraseSectors(first, count int) error {
	if f.locked {
		return ErrHALErase
	}
	if first < 0 || count < 1 || first+count > SectorTotal {
		return ErrHALSector
	}
	for s := first; s < first+count; s++ {
		if f.protMask&(1<<s) != 0 {
			return ErrHALSector
		}
	}
	f.erases = append(f.erases, [2]int{first, count})
	for s := first; s < first+count; s++ {
		base := SectorBase(s) - FlashBase
		for i := uint32(0); i < SectorSize(s); i++ {
			f.flash[base+i] = 0xFF
		}
	}
	return nil
}

func (f *fakeHW) MassErase() error {
	if f.locked {
		return ErrHALErase
	}
	f.massErases++
	for i := range f.flash {
		f.flash[i] = 0xFF
	}
	return nil
}

func (f *fakeHW) Program(addr uint32, data []byte) error {
	if f.locked {
		return ErrHALWrite
	}
	off := addr - FlashBase
	for i, b := range data {
		// Programming can only clear bits.
		f.flash[off+uint32(i)] &= b
	}
	return nil
}

func (f *fakeHW) ReadMemory(addr uint32, buf []byte) error {
	rs := defaultRegions()
	region, ok := rs.lookup(addr)
	if !ok || !region.ContainsRange(addr, uint32(len(buf))) {
		return ErrSegmentation
	}
	if region.Name == "FLASH" {
		copy(buf, f.flash[addr-FlashBase:])
		return nil
	}
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (f *fakeHW) Restart()                   { f.restarts++ }
func (f *fakeHW) DisableInterrupts()         { f.irqOff = true }
func (f *fakeHW) StopSysTick()               { f.systickOff = true }
func (f *fakeHW) SetVectorTable(addr uint32) { f.vtor = addr }
func (f *fakeHW) SetMainStack(addr uint32)   { f.msp = addr }
func (f *fakeHW) Call(addr uint32)           { f.calls = append(f.calls, addr) }

func (f *fakeHW) ChipID() (ChipID, error) {
	id := ChipID{Device: 0x0413, Revision: 0x1001}
	for i := range id.Unique {
		id.Unique[i] = byte(i)
	}
	return id, nil
}

func (f *fakeHW) RDPLevel() (byte, error)          { return f.rdp, nil }
func (f *fakeHW) WriteProtection() (uint32, error) { return f.protMask, nil }

func (f *fakeHW) SetWriteProtection(mask uint32, enable bool) error {
	if enable {
		f.protMask |= mask
	} else {
		f.protMask &^= mask
	}
	return nil
}

func (f *fakeHW) OTP(block int) ([]byte, bool, error) {
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(block)
	}
	return data, block == 0, nil
}

func (f *fakeHW) LedOn(l Led)  { f.leds[l] = true }
func (f *fakeHW) LedOff(l Led) { f.leds[l] = false }

// ============================================================
// Session Harness
// ============================================================

// startSession runs a session against hw over an in-memory pipe and
// returns the host end. Auto-activation is off unless a test re-enables
// it through opts.
func startSession(t *testing.T, hw Hardware, opts ...Option) (net.Conn, *Session, chan error) {
	t.Helper()
	host, dev := net.Pipe()
	s, err := NewSession(dev, hw, append([]Option{WithAutoActivate(false)}, opts...)...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	t.Cleanup(func() {
		host.Close()
		dev.Close()
	})
	return host, s, done
}

// readUntil reads from the host end until want occurs in the stream.
func readUntil(t *testing.T, conn net.Conn, want string) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var buf bytes.Buffer
	tmp := make([]byte, 256)
	for !strings.Contains(buf.String(), want) {
		n, err := conn.Read(tmp)
		buf.Write(tmp[:n])
		if err != nil {
			t.Fatalf("Waiting for %q: %v (received %q)", want, err, buf.String())
		}
	}
	return buf.String()
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("Sending %q: %v", line, err)
	}
}

func sendRaw(t *testing.T, conn net.Conn, data []byte) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("Sending %d raw bytes: %v", len(data), err)
	}
}

// waitDone asserts Run returned with the expected verdict.
func waitDone(t *testing.T, done chan error, wantErr bool) {
	t.Helper()
	select {
	case err := <-done:
		if wantErr && err == nil {
			t.Error("Expected Run to return an error")
		}
		if !wantErr && err != nil {
			t.Errorf("Run returned unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Session did not finish in time")
	}
}

// ============================================================
// Session Lifecycle Tests
// ============================================================

func TestSession_RequiresHardware(t *testing.T) {
	host, _ := net.Pipe()
	defer host.Close()
	if _, err := NewSession(host, Hardware{}); err == nil {
		t.Error("Expected an error for missing hardware interfaces")
	}
	if _, err := NewSession(nil, newFakeHW().hardware()); err == nil {
		t.Error("Expected an error for a nil connection")
	}
}

func TestSession_GreetingAndPrompt(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	out := readUntil(t, host, TxtPrompt)
	if !strings.Contains(out, "Amorce bootloader") {
		t.Errorf("Greeting missing from %q", out)
	}
	if !strings.Contains(out, Version) {
		t.Error("Greeting must carry the version")
	}
}

func TestSession_Version(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "version")
	out := readUntil(t, host, TxtSuccess)
	if !strings.Contains(out, Version) {
		t.Errorf("Expected version %q in %q", Version, out)
	}
}

func TestSession_CommandNameCaseInsensitive(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "VERSION")
	readUntil(t, host, TxtSuccess)
}

func TestSession_Help(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "help")
	out := readUntil(t, host, TxtSuccess)
	for _, c := range builtinCommands {
		if !strings.Contains(out, c.name) {
			t.Errorf("Help output missing command %q", c.name)
		}
	}
}

func TestSession_UnknownCommandIsRecoverable(t *testing.T) {
	hw := newFakeHW()
	host, _, done := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)

	// Three strikes must not end the session.
	for i := 0; i < 3; i++ {
		sendLine(t, host, "frobnicate")
		out := readUntil(t, host, TxtPrompt)
		if !strings.Contains(out, "ERROR: Invalid command") {
			t.Fatalf("Expected invalid command report, got %q", out)
		}
	}

	sendLine(t, host, "version")
	readUntil(t, host, TxtSuccess)

	sendLine(t, host, "exit")
	readUntil(t, host, TxtFarewell)
	waitDone(t, done, false)
}

func TestSession_EmptyLineIsSilent(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "")
	out := readUntil(t, host, TxtPrompt)
	if strings.Contains(out, "ERROR") {
		t.Errorf("Empty command must not be reported, got %q", out)
	}
}

func TestSession_OverlongLine(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, strings.Repeat("a", CmdBufSize+10))
	out := readUntil(t, host, TxtPrompt)
	if !strings.Contains(out, "ERROR: Command too long") {
		t.Errorf("Expected overflow report, got %q", out)
	}
	sendLine(t, host, "version")
	readUntil(t, host, TxtSuccess)
}

func TestSession_Exit(t *testing.T) {
	hw := newFakeHW()
	host, s, done := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "exit")

	// The exit command itself succeeds before the farewell.
	out := readUntil(t, host, TxtFarewell)
	if !strings.Contains(out, TxtSuccess) {
		t.Error("Exit must confirm with OK before the farewell")
	}
	waitDone(t, done, false)

	if hw.leds[LedPower] {
		t.Error("Power LED must be off after the session ends")
	}
	if st := s.Stats(); st.Commands != 1 {
		t.Errorf("Expected 1 dispatched command, got %d", st.Commands)
	}
}

func TestSession_Reset(t *testing.T) {
	hw := newFakeHW()
	host, _, done := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "reset")
	readUntil(t, host, TxtSuccess)
	waitDone(t, done, false)
	if hw.restarts != 1 {
		t.Errorf("Expected 1 restart, got %d", hw.restarts)
	}
}

func TestSession_PeerDisconnect(t *testing.T) {
	hw := newFakeHW()
	host, _, done := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	host.Close()
	waitDone(t, done, false)
}

// faultConn passes a fixed number of reads through, then fails them,
// like a link whose receive side went bad while transmit still works.
type faultConn struct {
	net.Conn
	reads int
}

func (f *faultConn) Read(p []byte) (int, error) {
	if f.reads == 0 {
		return 0, errors.New("rx fault")
	}
	f.reads--
	return f.Conn.Read(p)
}

func TestSession_ReceiveFaultQuietWindDown(t *testing.T) {
	host, dev := net.Pipe()
	t.Cleanup(func() {
		host.Close()
		dev.Close()
	})
	hw := newFakeHW()
	s, err := NewSession(&faultConn{Conn: dev, reads: 1}, hw.hardware(), WithAutoActivate(false))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "version")
	readUntil(t, host, TxtSuccess)

	// The failed receive is not reported to the host: the shell logs
	// it, prompts once more, and then winds down cleanly.
	out := readUntil(t, host, TxtPrompt)
	out += readUntil(t, host, TxtPrompt)
	if strings.Contains(out, TxtErrorPrefix) {
		t.Errorf("Receive fault must not be reported to the host, got %q", out)
	}
	waitDone(t, done, false)
}

func TestSession_CID(t *testing.T) {
	hw := newFakeHW()
	host, _, _ := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "cid")
	out := readUntil(t, host, TxtSuccess)
	if !strings.Contains(out, "0x0413") {
		t.Errorf("Expected device ID in %q", out)
	}
	if !strings.Contains(out, "000102030405060708090a0b") {
		t.Errorf("Expected unique ID in %q", out)
	}
}

func TestSession_ErrorsCounted(t *testing.T) {
	hw := newFakeHW()
	host, s, done := startSession(t, hw.hardware())
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "nonsense")
	readUntil(t, host, TxtPrompt)
	sendLine(t, host, "exit")
	readUntil(t, host, TxtFarewell)
	waitDone(t, done, false)

	st := s.Stats()
	if st.Errors != 1 {
		t.Errorf("Expected 1 error counted, got %d", st.Errors)
	}
}
