// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// fragmentReader hands out its payload a few bytes at a time to exercise
// reassembly across read boundaries.
type fragmentReader struct {
	data []byte
	size int
}

func (f *fragmentReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, io.EOF
	}
	n := f.size
	if n > len(f.data) {
		n = len(f.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, f.data[:n])
	f.data = f.data[n:]
	return n, nil
}

// ============================================================
// Line Receiver Tests
// ============================================================

func TestReadLine_SingleChunk(t *testing.T) {
	rx := newReceiver(strings.NewReader("version\r\n"))
	line, err := rx.readLine()
	if err != nil {
		t.Fatalf("readLine error: %v", err)
	}
	if string(line) != "version" {
		t.Errorf("Expected %q, got %q", "version", line)
	}
}

func TestReadLine_Fragmented(t *testing.T) {
	for _, size := range []int{1, 2, 3, 5} {
		rx := newReceiver(&fragmentReader{
			data: []byte("flash-erase type=sector sector=0 count=3\r\n"),
			size: size,
		})
		line, err := rx.readLine()
		if err != nil {
			t.Fatalf("fragment size %d: readLine error: %v", size, err)
		}
		if string(line) != "flash-erase type=sector sector=0 count=3" {
			t.Errorf("fragment size %d: got %q", size, line)
		}
	}
}

func TestReadLine_TwoLinesOneChunk(t *testing.T) {
	rx := newReceiver(strings.NewReader("version\r\nhelp\r\n"))
	first, err := rx.readLine()
	if err != nil {
		t.Fatalf("first readLine error: %v", err)
	}
	second, err := rx.readLine()
	if err != nil {
		t.Fatalf("second readLine error: %v", err)
	}
	if string(first) != "version" || string(second) != "help" {
		t.Errorf("Expected version/help, got %q/%q", first, second)
	}
}

func TestReadLine_EmptyLine(t *testing.T) {
	rx := newReceiver(strings.NewReader("\r\n"))
	line, err := rx.readLine()
	if err != nil {
		t.Fatalf("readLine error: %v", err)
	}
	if len(line) != 0 {
		t.Errorf("Expected empty line, got %q", line)
	}
}

func TestReadLine_Overflow(t *testing.T) {
	long := strings.Repeat("a", CmdBufSize+40) + "\r\nversion\r\n"
	rx := newReceiver(strings.NewReader(long))
	if _, err := rx.readLine(); !errors.Is(err, ErrReadOverflow) {
		t.Fatalf("Expected ErrReadOverflow, got %v", err)
	}
	// The overlong line is consumed through its terminator; the next
	// command must come through intact.
	line, err := rx.readLine()
	if err != nil {
		t.Fatalf("readLine after overflow: %v", err)
	}
	if string(line) != "version" {
		t.Errorf("Expected %q after overflow, got %q", "version", line)
	}
}

func TestReadLine_OverflowFragmented(t *testing.T) {
	long := strings.Repeat("b", CmdBufSize*3) + "\r\nhelp\r\n"
	rx := newReceiver(&fragmentReader{data: []byte(long), size: 7})
	if _, err := rx.readLine(); !errors.Is(err, ErrReadOverflow) {
		t.Fatalf("Expected ErrReadOverflow, got %v", err)
	}
	line, err := rx.readLine()
	if err != nil {
		t.Fatalf("readLine after overflow: %v", err)
	}
	if string(line) != "help" {
		t.Errorf("Expected %q after overflow, got %q", "help", line)
	}
}

func TestReadLine_MaxLengthAccepted(t *testing.T) {
	// Content plus CRLF exactly fills the command buffer.
	content := strings.Repeat("c", CmdBufSize-2)
	rx := newReceiver(strings.NewReader(content + "\r\n"))
	line, err := rx.readLine()
	if err != nil {
		t.Fatalf("A line that exactly fills the buffer must pass: %v", err)
	}
	if string(line) != content {
		t.Errorf("Line content mangled, got %d bytes", len(line))
	}
}

func TestReadLine_OneOverMax(t *testing.T) {
	content := strings.Repeat("d", CmdBufSize-1)
	rx := newReceiver(strings.NewReader(content + "\r\n"))
	if _, err := rx.readLine(); !errors.Is(err, ErrReadOverflow) {
		t.Errorf("Expected ErrReadOverflow one byte over the limit, got %v", err)
	}
}

func TestReadLine_EOF(t *testing.T) {
	rx := newReceiver(strings.NewReader("no terminator"))
	if _, err := rx.readLine(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

// errReader yields its payload, then fails the way a broken transport
// does.
type errReader struct {
	data []byte
	err  error
}

func (e *errReader) Read(p []byte) (int, error) {
	if len(e.data) > 0 {
		n := copy(p, e.data)
		e.data = e.data[n:]
		return n, nil
	}
	return 0, e.err
}

func TestReadLine_TransportError(t *testing.T) {
	rx := newReceiver(&errReader{data: []byte("ver"), err: errors.New("bus fault")})
	if _, err := rx.readLine(); !errors.Is(err, ErrHALRx) {
		t.Fatalf("Expected ErrHALRx, got %v", err)
	}
	// The code is delivered once; after that the dead stream reads as
	// plain end-of-input.
	if _, err := rx.readLine(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after the failure was reported, got %v", err)
	}
}

func TestReadLine_ClosedOnOurSide(t *testing.T) {
	rx := newReceiver(&errReader{err: io.ErrClosedPipe})
	if _, err := rx.readLine(); !errors.Is(err, ErrRxAbort) {
		t.Fatalf("Expected ErrRxAbort, got %v", err)
	}
	if _, err := rx.readLine(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after the abort was reported, got %v", err)
	}
}

func TestReadFull_TransportError(t *testing.T) {
	rx := newReceiver(&errReader{data: []byte{1, 2, 3}, err: errors.New("bus fault")})
	buf := make([]byte, 8)
	if err := rx.readFull(buf); !errors.Is(err, ErrHALRx) {
		t.Errorf("Expected ErrHALRx mid-payload, got %v", err)
	}
}

func TestReadFull_AfterLine(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5A}, 64)
	input := append([]byte("flash-write start=0x08010000 count=64\r\n"), payload...)
	input = append(input, []byte("exit\r\n")...)

	rx := newReceiver(&fragmentReader{data: input, size: 9})
	line, err := rx.readLine()
	if err != nil {
		t.Fatalf("readLine error: %v", err)
	}
	if string(line) != "flash-write start=0x08010000 count=64" {
		t.Fatalf("Unexpected line %q", line)
	}

	buf := make([]byte, 64)
	if err := rx.readFull(buf); err != nil {
		t.Fatalf("readFull error: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Error("Payload bytes mangled crossing the line/raw boundary")
	}

	line, err = rx.readLine()
	if err != nil {
		t.Fatalf("readLine after payload: %v", err)
	}
	if string(line) != "exit" {
		t.Errorf("Expected %q after payload, got %q", "exit", line)
	}
}

func TestReadFull_ShortStream(t *testing.T) {
	rx := newReceiver(strings.NewReader("abc"))
	buf := make([]byte, 8)
	if err := rx.readFull(buf); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF on short stream, got %v", err)
	}
}
