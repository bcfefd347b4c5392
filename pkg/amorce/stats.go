// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import (
	"fmt"
	"time"
)

// SessionStats counts what one shell session did. All updates happen on
// the session goroutine; read it after Run returns or from the owning
// goroutine.
type SessionStats struct {
	Commands         uint64
	Errors           uint64
	Uploads          uint64
	BytesFlashed     uint64
	ChecksumFailures uint64
	Started          time.Time
}

func (s SessionStats) String() string {
	up := time.Duration(0)
	if !s.Started.IsZero() {
		up = time.Since(s.Started).Round(time.Second)
	}
	return fmt.Sprintf(
		"commands: %d, errors: %d, uploads: %d, bytes flashed: %d, checksum failures: %d, up: %s",
		s.Commands, s.Errors, s.Uploads, s.BytesFlashed, s.ChecksumFailures, up,
	)
}
