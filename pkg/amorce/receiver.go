// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"bytes"
	"errors"
	"io"
	"net"
)

// receiver pumps bytes off the session transport in its own goroutine and
// hands them to the shell loop over a channel. The loop then consumes the
// stream either line-wise (commands) or as exact counts of raw bytes
// (upload payloads); both views share one cursor, so payload bytes are
// never mistaken for commands.
type receiver struct {
	data     chan []byte
	pending  []byte
	err      error
	reported bool
}

func newReceiver(r io.Reader) *receiver {
	rx := &receiver{data: make(chan []byte, 4)}
	go rx.pump(r)
	return rx
}

func (rx *receiver) pump(r io.Reader) {
	defer close(rx.data)
	for {
		buf := make([]byte, 512)
		n, err := r.Read(buf)
		if n > 0 {
			rx.data <- buf[:n]
		}
		if err != nil {
			rx.err = err
			return
		}
	}
}

// next blocks for the next raw chunk. Once the pump has stopped, the
// first call reports how: a peer disconnect is io.EOF, a transport torn
// down on our side is ErrRxAbort, and any other read failure is ErrHALRx.
// The code is delivered once; after that the dead stream reads as plain
// end-of-input so the shell winds down instead of spinning on a prompt.
func (rx *receiver) next() ([]byte, error) {
	if len(rx.pending) > 0 {
		p := rx.pending
		rx.pending = nil
		return p, nil
	}
	chunk, ok := <-rx.data
	if !ok {
		switch {
		case rx.err == nil || errors.Is(rx.err, io.EOF) || rx.reported:
			return nil, io.EOF
		case errors.Is(rx.err, io.ErrClosedPipe) || errors.Is(rx.err, net.ErrClosed):
			rx.reported = true
			return nil, ErrRxAbort
		default:
			rx.reported = true
			return nil, ErrHALRx
		}
	}
	return chunk, nil
}

// drain discards anything still buffered so a pump stuck handing off a
// chunk can observe the transport closing and exit.
func (rx *receiver) drain() {
	go func() {
		for range rx.data {
		}
	}()
}

// readLine blocks until a full CRLF-terminated line arrives and returns
// it without the terminator. A line longer than CmdBufSize is discarded
// through its terminator and reported as ErrReadOverflow, so the overflow
// tail never surfaces as a garbage command.
func (rx *receiver) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := rx.next()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if i := bytes.Index(line, []byte(crlf)); i >= 0 {
			rx.pending = line[i+len(crlf):]
			if i+len(crlf) > CmdBufSize {
				return nil, ErrReadOverflow
			}
			return line[:i], nil
		}
		if len(line) > CmdBufSize {
			return nil, rx.drainOverflow(line[len(line)-1] == '\r')
		}
	}
}

// drainOverflow eats the rest of an overlong line through its CRLF, which
// may straddle chunk boundaries.
func (rx *receiver) drainOverflow(lastCR bool) error {
	for {
		chunk, err := rx.next()
		if err != nil {
			return err
		}
		if lastCR && chunk[0] == '\n' {
			rx.pending = chunk[1:]
			return ErrReadOverflow
		}
		if i := bytes.Index(chunk, []byte(crlf)); i >= 0 {
			rx.pending = chunk[i+len(crlf):]
			return ErrReadOverflow
		}
		lastCR = chunk[len(chunk)-1] == '\r'
	}
}

// readFull blocks until len(buf) raw bytes arrive.
func (rx *receiver) readFull(buf []byte) error {
	got := 0
	for got < len(buf) {
		chunk, err := rx.next()
		if err != nil {
			return err
		}
		n := copy(buf[got:], chunk)
		got += n
		if n < len(chunk) {
			rx.pending = chunk[n:]
		}
	}
	return nil
}
