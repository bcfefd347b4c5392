// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"errors"
	"io"
	"time"
)

// Session is one run of the bootloader shell over a transport. It owns
// the state machine, the command registry and the hardware interfaces;
// Run drives it until the host exits, control is handed off, or the
// transport dies.
type Session struct {
	conn io.ReadWriter
	hw   Hardware
	log  Logger
	rx   *receiver

	regions      regionSet
	policy       ChecksumPolicy
	autoActivate bool

	registry map[string]command

	state      shellState
	pendingErr ErrCode
	exitReq    bool
	stats      SessionStats
}

// command binds a keyword to its handler and help text.
type command struct {
	name  string
	usage string
	brief string
	run   func(s *Session, c *ParsedCommand) error
}

// errRestarted marks a handler that ended the session by restarting the
// device or handing control to the user application. Any response was
// already sent by the handler itself.
var errRestarted = errors.New("device control transferred")

// NewSession wires a shell session over conn. Flash, Memory and System
// hardware interfaces are required.
func NewSession(conn io.ReadWriter, hw Hardware, opts ...Option) (*Session, error) {
	if conn == nil {
		return nil, errors.New("amorce: nil connection")
	}
	if hw.Flash == nil || hw.Memory == nil || hw.System == nil {
		return nil, errors.New("amorce: flash, memory and system interfaces are required")
	}
	if hw.Leds == nil {
		hw.Leds = noopIndicator{}
	}
	// The shell starts in the Error state with no pending code, so the
	// first pass falls through to Operation.
	s := &Session{
		conn:         conn,
		hw:           hw,
		log:          nopLogger{},
		regions:      defaultRegions(),
		policy:       PolicyWarn,
		autoActivate: true,
		registry:     make(map[string]command, len(builtinCommands)),
		state:        stateError,
	}
	for _, c := range builtinCommands {
		s.registry[c.name] = c
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	return s.stats
}

// Run executes the shell until exit. It returns nil when the host asked
// to exit, disconnected, or a handler transferred control away from the
// shell; it returns the underlying error when writing to the transport
// failed.
func (s *Session) Run() error {
	s.hw.Leds.LedOn(LedPower)
	defer s.hw.Leds.LedOff(LedPower)

	s.stats.Started = time.Now()
	s.rx = newReceiver(s.conn)
	defer s.rx.drain()
	s.log.Infof("shell session starting")

	if err := s.send(greeting); err != nil {
		return err
	}

	// A staged application is activated before the host gets a prompt,
	// exactly as if the host had sent update-act itself.
	if s.autoActivate {
		if stop, err := s.absorb(s.dispatchLine([]byte(CmdUpdateAct))); stop {
			return err
		}
	}

	for {
		switch s.state {
		case stateOperation:
			if stop, err := s.absorb(s.operate()); stop {
				return err
			}
		case stateError:
			s.hw.Leds.LedOff(LedReady)
			s.hw.Leds.LedOff(LedBusy)
			s.hw.Leds.LedOff(LedMemory)
			if err := s.reportError(s.pendingErr); err != nil {
				return err
			}
			s.pendingErr = 0
			s.state = stateOperation
		case stateExit:
			s.log.Infof("shell session exiting: %s", s.stats.String())
			if err := s.send(TxtFarewell); err != nil {
				return err
			}
			return nil
		default:
			s.pendingErr = ErrState
			s.state = stateError
		}
	}
}

// operate runs one prompt/read/dispatch cycle.
func (s *Session) operate() error {
	s.hw.Leds.LedOn(LedReady)
	if err := s.send(TxtPrompt); err != nil {
		s.hw.Leds.LedOff(LedReady)
		return err
	}
	line, err := s.rx.readLine()
	s.hw.Leds.LedOff(LedReady)
	if err != nil {
		return err
	}

	s.hw.Leds.LedOn(LedBusy)
	defer s.hw.Leds.LedOff(LedBusy)
	return s.dispatchLine(line)
}

// dispatchLine parses one command line, runs its handler and confirms
// success to the host.
func (s *Session) dispatchLine(line []byte) error {
	cmd, err := ParseCommand(line)
	if err != nil {
		s.stats.Errors++
		return err
	}
	c, ok := s.registry[cmd.Name]
	if !ok {
		s.stats.Errors++
		return ErrCmdUndefined
	}
	if c.run == nil {
		s.stats.Errors++
		return ErrCmdCode
	}
	s.log.Debugf("dispatching %q with %d args", cmd.Name, cmd.NumArgs())
	if err := c.run(s, &cmd); err != nil {
		if !errors.Is(err, errRestarted) {
			s.stats.Errors++
		}
		return err
	}
	s.stats.Commands++
	return s.send(TxtSuccess)
}

// absorb routes one dispatch or cycle result into the state machine. It
// reports whether the session is over and with what verdict.
func (s *Session) absorb(err error) (stop bool, ret error) {
	if err == nil {
		if s.exitReq {
			s.state = stateExit
		}
		return false, nil
	}
	if errors.Is(err, errRestarted) {
		return true, nil
	}
	var code ErrCode
	if errors.As(err, &code) {
		s.pendingErr = code
		s.state = stateError
		return false, nil
	}
	if errors.Is(err, io.EOF) {
		s.log.Infof("session closed by peer")
		return true, nil
	}
	s.log.Warnf("session transport failed: %v", err)
	return true, err
}

// reportError is the Error state: it maps the pending code to a response
// line or a log entry. A transmit failure while reporting is returned and
// ends the session.
func (s *Session) reportError(code ErrCode) error {
	if code == 0 {
		return nil
	}
	msg, report, known := responseText(code)
	if !known {
		s.log.Warnf("unhandled error: %v", code)
		return nil
	}
	if !report {
		s.logQuiet(code)
		return nil
	}
	s.log.Infof("reporting to host: %v", code)
	return s.send(TxtErrorPrefix + msg + crlf)
}

// logQuiet logs the codes that are never reported to the host.
func (s *Session) logQuiet(code ErrCode) {
	switch code {
	case ErrCmdTooShort:
		s.log.Infof("client sent an empty command")
	case ErrWrite:
		s.log.Warnf("error occurred while writing")
	case ErrInvalidParam:
		s.log.Errorf("wrong parameter sent to a function")
	default:
		s.log.Warnf("%v", code)
	}
}

func (s *Session) send(text string) error {
	_, err := io.WriteString(s.conn, text)
	return err
}

func (s *Session) sendLine(text string) error {
	return s.send(text + crlf)
}
