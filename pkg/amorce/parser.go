// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amorce

import "bytes"

// ParsedCommand is one decoded command line: the lower-cased command name
// plus its key=value arguments in order of appearance.
type ParsedCommand struct {
	Name string

	args []argPair
}

type argPair struct {
	key string
	val string
}

// Arg returns the value of the named argument and whether it was present.
// Argument keys are matched case-sensitively.
func (p *ParsedCommand) Arg(key string) (string, bool) {
	for _, a := range p.args {
		if a.key == key {
			return a.val, true
		}
	}
	return "", false
}

// NumArgs returns the number of arguments that were parsed.
func (p *ParsedCommand) NumArgs() int {
	return len(p.args)
}

// ParseCommand tokenizes one received line. The first token is the command
// name and is folded to lower case; the remaining tokens are key=value
// arguments whose case is preserved. Parsing stops at the first token
// without '=' and after MaxArgs arguments; anything beyond is ignored.
// An empty line yields ErrCmdTooShort.
func ParseCommand(line []byte) (ParsedCommand, error) {
	var cmd ParsedCommand
	rest := line
	for len(cmd.args) < MaxArgs {
		var tok []byte
		tok, rest = nextToken(rest)
		if tok == nil {
			break
		}
		if cmd.Name == "" {
			cmd.Name = string(bytes.ToLower(tok))
			continue
		}
		eq := bytes.IndexByte(tok, '=')
		if eq < 0 {
			break
		}
		cmd.args = append(cmd.args, argPair{
			key: string(tok[:eq]),
			val: string(tok[eq+1:]),
		})
	}
	if cmd.Name == "" {
		return ParsedCommand{}, ErrCmdTooShort
	}
	return cmd, nil
}

// nextToken skips leading spaces and returns the next space-delimited
// token, or nil when the input is exhausted.
func nextToken(b []byte) (tok, rest []byte) {
	for len(b) > 0 && b[0] == ' ' {
		b = b[1:]
	}
	if len(b) == 0 {
		return nil, nil
	}
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return b, nil
	}
	return b[:end], b[end+1:]
}
