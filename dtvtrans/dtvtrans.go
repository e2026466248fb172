// Package dtvtrans frames memory blocks and commands over dtvlow.
//
// A block is opcode, mode, bank, offset and length (both little endian),
// the data bytes, and an additive check byte that both ends compute and
// compare.  A running CRC16 is kept across blocks for the host side check.
package dtvtrans

import (
	"io"

	"github.com/strickyak/dtv2ser/crc16"
	"github.com/strickyak/dtv2ser/dtvlow"
	"github.com/strickyak/dtv2ser/status"
	"github.com/strickyak/dtv2ser/uart"
)

// Opcodes of the device side server.
const (
	CmdRead  = 0x01
	CmdWrite = 0x02
	CmdExec  = 0x03

	// VarArg as output size: the device sends the size first.
	VarArg = 0xff
)

// Block describes one block transfer.  CRC16 is the running value going in
// and the updated one coming out; Transferred counts bytes that crossed.
type Block struct {
	Mode        byte
	Bank        byte
	Offset      uint16
	Length      uint16
	CRC16       uint16
	Transferred uint16
}

// Host supplies bytes for a send and takes them on a receive.
type Host interface {
	TransferByte(data *byte) status.Code
}

type Trans struct {
	Low *dtvlow.Low
}

func New(low *dtvlow.Low) *Trans {
	return &Trans{Low: low}
}

func (o *Trans) sendLoHi(w uint16) status.Code {
	if st := o.Low.SendByte(byte(w)); st != status.OK {
		return st
	}
	return o.Low.SendByte(byte(w >> 8))
}

func (o *Trans) sendHeader(op byte, blk *Block) status.Code {
	for _, b := range []byte{op, blk.Mode, blk.Bank} {
		if st := o.Low.SendByte(b); st != status.OK {
			return st
		}
	}
	if st := o.sendLoHi(blk.Offset); st != status.OK {
		return st
	}
	return o.sendLoHi(blk.Length)
}

// outcome applies host error, then wire error, then check byte mismatch.
func outcome(host, wire status.Code, chk, chk2 byte) status.Code {
	if st := status.Merge(host, wire); st != status.OK {
		return st
	}
	if chk != chk2 {
		return status.Checksum
	}
	return status.OK
}

// SendBlock writes a block to the device, pulling the data from host.
// After a host failure zeros are sent so the device still sees a full block.
func (o *Trans) SendBlock(blk *Block, host Host) status.Code {
	low := o.Low
	low.StateSend()

	st := o.sendHeader(CmdWrite, blk)

	var chk byte
	var i uint16
	crc := blk.CRC16
	hostSt := status.OK
	if st == status.OK {
		for i < blk.Length {
			var data byte
			if hostSt == status.OK {
				hostSt = host.TransferByte(&data)
				if hostSt != status.OK {
					data = 0
				}
			}
			if st = low.SendByte(data); st != status.OK {
				break
			}
			chk = crc16.Sum(chk, data)
			crc = crc16.Update(crc, data)
			i++
		}
	}
	blk.Transferred = i
	blk.CRC16 = crc

	if st == status.OK {
		st = low.SendByte(chk)
	}

	// The device answers with its own check byte in any case.
	low.StateRecv()
	chk2, st2 := low.RecvByte()
	if st == status.OK {
		st = st2
	}

	low.StateOff()
	return outcome(hostSt, st, chk, chk2)
}

// RecvBlock reads a block from the device and pushes the data to host.
func (o *Trans) RecvBlock(blk *Block, host Host) status.Code {
	low := o.Low
	low.StateSend()

	st := o.sendHeader(CmdRead, blk)

	low.StateRecv()

	var chk, chk2 byte
	var i uint16
	crc := blk.CRC16
	hostSt := status.OK
	if st == status.OK {
		for i < blk.Length {
			var data byte
			if data, st = low.RecvByte(); st != status.OK {
				break
			}
			if hostSt == status.OK {
				hostSt = host.TransferByte(&data)
			}
			chk = crc16.Sum(chk, data)
			crc = crc16.Update(crc, data)
			i++
		}
	}
	blk.Transferred = i
	blk.CRC16 = crc

	if st == status.OK {
		chk2, st = low.RecvByte()
	}

	low.StateOff()
	return outcome(hostSt, st, chk, chk2)
}

// ExecMem jumps to addr on the device.
func (o *Trans) ExecMem(addr uint16) status.Code {
	o.Low.StateSend()
	st := o.Low.SendByte(CmdExec)
	if st == status.OK {
		st = o.sendLoHi(addr)
	}
	o.Low.StateOff()
	return st
}

// Command sends a device opcode with its argument bytes.  When outSize is
// nonzero the output is read back and written to w as hex digits and CRLF,
// preceded by a size line when outSize is VarArg.
func (o *Trans) Command(cmd byte, in []byte, outSize byte, w io.Writer) status.Code {
	low := o.Low
	low.StateSend()
	defer low.StateOff()

	st := low.SendByte(cmd)
	for _, b := range in {
		if st != status.OK {
			break
		}
		st = low.SendByte(b)
	}
	if st != status.OK || outSize == 0 {
		return st
	}

	low.StateRecv()
	size := outSize
	if outSize == VarArg {
		if size, st = low.RecvByte(); st != status.OK {
			return st
		}
		if _, err := w.Write(append(uart.HexByte(size), '\r', '\n')); err != nil {
			return status.ClientTimeout
		}
	}
	for i := 0; i < int(size); i++ {
		var b byte
		if b, st = low.RecvByte(); st != status.OK {
			return st
		}
		if _, err := w.Write(uart.HexByte(b)); err != nil {
			return status.ClientTimeout
		}
	}
	if _, err := w.Write([]byte{'\r', '\n'}); err != nil {
		return status.ClientTimeout
	}
	return status.OK
}

func (o *Trans) sendHiLoBoot(w uint16) status.Code {
	if st := o.Low.SendByteBoot(byte(w >> 8)); st != status.OK {
		return st
	}
	return o.Low.SendByteBoot(byte(w))
}

// SendBoot feeds the boot loader: start and end big endian, length bytes
// pulled from host, then the check sum.  It returns the status and the
// check byte it sent.
func (o *Trans) SendBoot(base, length uint16, host Host, toggle func()) (status.Code, byte) {
	low := o.Low
	low.StateSend()

	st := o.sendHiLoBoot(base)
	if st == status.OK {
		st = o.sendHiLoBoot(base + length - 1)
	}

	var chk byte
	if st == status.OK {
		for n := length; n > 0; n-- {
			var data byte
			if st = host.TransferByte(&data); st != status.OK {
				break
			}
			if st = low.SendByteBoot(data); st != status.OK {
				break
			}
			if toggle != nil {
				toggle()
			}
			chk = crc16.Sum(chk, data)
		}
	}
	if st == status.OK {
		st = low.SendByteBoot(chk)
	}

	low.StateOff()
	return st, chk
}
