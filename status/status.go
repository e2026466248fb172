// Package status holds the one byte result codes shared by every layer
// of the transfer stack.  The values go over the wire as two hex digits.
package status

import "fmt"

type Code byte

const (
	OK Code = 0x00

	// dtvlow: which handshake phase saw no ack
	NoAck1 Code = 0x01
	NoAck2 Code = 0x02
	NoAck3 Code = 0x03
	NoAck4 Code = 0x04
	Begin  Code = 0x05

	// dtvtrans
	Checksum Code = 0x06

	// host side
	ClientTimeout  Code = 0x07
	VerifyMismatch Code = 0x08
	ClientAbort    Code = 0x09
	CRC16Mismatch  Code = 0x0a

	Command  Code = 0x0b
	NotAlive Code = 0x0c
)

var CodeNames = map[Code]string{
	OK:             "OK",
	NoAck1:         "dtvlow: no ack 1",
	NoAck2:         "dtvlow: no ack 2",
	NoAck3:         "dtvlow: no ack 3",
	NoAck4:         "dtvlow: no ack 4",
	Begin:          "dtvlow: begin",
	Checksum:       "dtvtrans: checksum mismatch",
	ClientTimeout:  "client timeout",
	VerifyMismatch: "diagnose: verify mismatch",
	ClientAbort:    "client abort",
	CRC16Mismatch:  "block crc16 mismatch",
	Command:        "command error",
	NotAlive:       "not alive",
}

func (c Code) String() string {
	if s, ok := CodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("status $%02x", byte(c))
}

// Error makes a non-OK code usable as a Go error.
func (c Code) Error() string {
	return c.String()
}

// Err is nil for OK and the code itself otherwise.
func (c Code) Err() error {
	if c == OK {
		return nil
	}
	return c
}

// NoAck maps a handshake phase 1..4 to its code.
func NoAck(phase int) Code {
	return NoAck1 + Code(phase-1)
}

// Merge combines a host side and a device side outcome.  The host wins.
func Merge(host, device Code) Code {
	if host != OK {
		return host
	}
	return device
}
