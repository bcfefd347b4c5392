// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

// Logger is the leveled logging surface the shell writes to. It is
// satisfied by *logrus.Logger; the default discards everything.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

// Option configures a Session.
type Option func(*Session)

// WithLogger routes shell logging to l.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithChecksumPolicy selects how the write pipeline treats chunks that
// fail checksum verification. The default is PolicyWarn.
func WithChecksumPolicy(p ChecksumPolicy) Option {
	return func(s *Session) { s.policy = p }
}

// WithAutoActivate controls whether the session runs update-act once
// before entering the command loop, activating any staged application.
// Enabled by default.
func WithAutoActivate(on bool) Option {
	return func(s *Session) { s.autoActivate = on }
}

// WithExternalMemory maps an external memory bank at base, making it a
// valid jump and read target.
func WithExternalMemory(base, size uint32) Option {
	return func(s *Session) {
		s.regions.add(FlashRegion{Name: "EXTMEM", Base: base, Size: size})
	}
}
