// Package cmdline is the text front end of the bridge.
//
// Lines are collected by an Editor, matched against a command table by
// name prefix (first entry wins), and their hex arguments parsed against
// the command's pattern: b is a byte (2 digits), w a word (4), t a 24 bit
// value (6), and * any number of further bytes.
package cmdline

import (
	"fmt"

	"github.com/strickyak/dtv2ser/uart"
)

// Status is the parse result sent back before a command runs.
type Status byte

const (
	OK             Status = 0
	LineTooLong    Status = 1
	UnknownCommand Status = 2
	NoArgsAllowed  Status = 3
	TooFewArgs     Status = 4
	ArgTooShort    Status = 5
	NoHexArg       Status = 6
	TooManyArgs    Status = 7
)

var StatusNames = map[Status]string{
	OK:             "OK",
	LineTooLong:    "line too long",
	UnknownCommand: "unknown command",
	NoArgsAllowed:  "no arguments allowed",
	TooFewArgs:     "too few arguments",
	ArgTooShort:    "argument too short",
	NoHexArg:       "not a hex argument",
	TooManyArgs:    "too many arguments",
}

func (s Status) String() string {
	if name, ok := StatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("cmdline status $%02x", byte(s))
}

const (
	Size      = 40
	MaxBytes  = 16
	MaxWords  = 2
	MaxDWords = 2
)

type Args struct {
	Bytes  []byte
	Words  []uint16
	DWords []uint32
}

// Command is one table entry.  An empty Pattern takes no arguments.
type Command struct {
	Name    string
	Pattern string
	Help    string
	Exec    func(args *Args)
}

// Find returns the first command whose name starts the line.
func Find(table []Command, line []byte) *Command {
	for i := range table {
		name := table[i].Name
		if len(line) >= len(name) && string(line[:len(name)]) == name {
			return &table[i]
		}
	}
	return nil
}

func skipSpaces(data []byte) []byte {
	for len(data) > 0 && data[0] == ' ' {
		data = data[1:]
	}
	return data
}

// Parse reads the arguments in data as the pattern says.
func Parse(pattern string, data []byte) (*Args, Status) {
	args := &Args{}
	data = skipSpaces(data)

	if pattern == "" {
		if len(data) == 0 {
			return args, OK
		}
		return args, NoArgsAllowed
	}

	for i := 0; i < len(pattern); {
		p := pattern[i]
		if p != '*' {
			i++
		}

		if len(data) == 0 {
			if p == '*' {
				break
			}
			return args, TooFewArgs
		}

		width := 0
		switch p {
		case 'b', '*':
			width = 2
		case 'w':
			width = 4
		case 't':
			width = 6
		}
		if width > 0 {
			if len(data) < width {
				return args, ArgTooShort
			}
			if width == 2 && len(args.Bytes) == MaxBytes {
				return args, TooManyArgs
			}
			v, ok := uart.ParseHex(data[:width])
			if !ok {
				return args, NoHexArg
			}
			switch width {
			case 2:
				args.Bytes = append(args.Bytes, byte(v))
			case 4:
				args.Words = append(args.Words, uint16(v))
			case 6:
				args.DWords = append(args.DWords, v)
			}
			data = data[width:]
		}

		data = skipSpaces(data)
	}

	if len(data) != 0 {
		return args, TooManyArgs
	}
	return args, OK
}

// Dispatch looks up and parses a finished line.  The command is nil unless
// the status is OK.
func Dispatch(table []Command, line []byte) (*Command, *Args, Status) {
	if len(line) >= Size {
		return nil, nil, LineTooLong
	}
	cmd := Find(table, line)
	if cmd == nil {
		return nil, nil, UnknownCommand
	}
	args, st := Parse(cmd.Pattern, line[len(cmd.Name):])
	if st != OK {
		return nil, args, st
	}
	return cmd, args, OK
}
