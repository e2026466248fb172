// Package sertrans puts the serial link behind transfer.Host.
//
// Read is host to device (the `w` command): the bridge reads data and each
// block's CRC16 from the host.  Write is device to host (the `r` command):
// the bridge writes data and CRC16 and watches for an abort byte between
// blocks.  Both open with a zero byte and close with a status byte.
package sertrans

import (
	"github.com/strickyak/dtv2ser/status"
	"github.com/strickyak/dtv2ser/uart"
)

// Read pulls a transfer from the host.
type Read struct {
	Port uart.Port
}

func (h *Read) Begin(length uint32) status.Code {
	h.Port.StartReception()
	if !h.Port.Send(0) {
		return status.ClientTimeout
	}
	return status.OK
}

func (h *Read) TransferByte(data *byte) status.Code {
	b, ok := h.Port.Read()
	if !ok {
		return status.ClientTimeout
	}
	*data = b
	return status.OK
}

// CheckBlock compares the block CRC with the big endian word the host sends.
func (h *Read) CheckBlock(crc uint16) status.Code {
	hi, ok := h.Port.Read()
	if !ok {
		return status.ClientTimeout
	}
	lo, ok := h.Port.Read()
	if !ok {
		return status.ClientTimeout
	}
	if uint16(hi)<<8|uint16(lo) != crc {
		return status.CRC16Mismatch
	}
	return status.OK
}

// End reports the last status to the host.
func (h *Read) End(last status.Code) status.Code {
	if !h.Port.Send(byte(last)) {
		last = status.ClientTimeout
	}
	h.Port.StopReception()
	return last
}

// Write pushes a transfer to the host.
type Write struct {
	Port uart.Port
}

// Begin waits for the host's zero byte.
func (h *Write) Begin(length uint32) status.Code {
	h.Port.StartReception()
	b, ok := h.Port.Read()
	if !ok || b != 0 {
		return status.ClientTimeout
	}
	return status.OK
}

func (h *Write) TransferByte(data *byte) status.Code {
	if !h.Port.Send(*data) {
		return status.ClientTimeout
	}
	return status.OK
}

// CheckBlock sends the CRC big endian.  Anything the host sent meanwhile is
// an abort.
func (h *Write) CheckBlock(crc uint16) status.Code {
	if !h.Port.Send(byte(crc >> 8)) {
		return status.ClientTimeout
	}
	if !h.Port.Send(byte(crc)) {
		return status.ClientTimeout
	}
	if h.Port.Available() {
		return status.ClientAbort
	}
	return status.OK
}

// End returns the host's final byte, whatever the last status was.
func (h *Write) End(last status.Code) status.Code {
	b, ok := h.Port.Read()
	result := status.Code(b)
	if !ok {
		result = status.ClientTimeout
	}
	h.Port.StopReception()
	return result
}
