// Package transfer splits a memory transfer into bank sized blocks.
//
// The Engine drives one block function (the device side) against one Host
// (the serial link or a diagnose pattern), checks the CRC16 of every block
// with the host, and records the outcome in State for the `t` command.
package transfer

import (
	"time"

	"github.com/strickyak/dtv2ser/crc16"
	"github.com/strickyak/dtv2ser/dtvtrans"
	"github.com/strickyak/dtv2ser/hal"
	"github.com/strickyak/dtv2ser/status"
)

const (
	BankSize  = 0x4000
	BankShift = 14
)

// Host is the end of a transfer that is not the device.
type Host interface {
	Begin(length uint32) status.Code
	TransferByte(data *byte) status.Code
	CheckBlock(crc uint16) status.Code
	// End sees the last status and returns the final one.
	End(last status.Code) status.Code
}

// BlockFunc moves one block between the device side and host.
type BlockFunc func(blk *dtvtrans.Block, host dtvtrans.Host) status.Code

// State is the outcome of the last transfer.  Time is in 10ms ticks.
type State struct {
	Length uint32
	Time   uint16
	Result status.Code
}

type Engine struct {
	Clock hal.Clock
	LEDs  hal.Indicators
	State State
}

func NewEngine(clock hal.Clock, leds hal.Indicators) *Engine {
	return &Engine{Clock: clock, LEDs: leds}
}

func (e *Engine) begin(length uint32, host Host) status.Code {
	e.State = State{}
	if st := host.Begin(length); st != status.OK {
		e.State.Result = st
		return st
	}
	e.LEDs.Set(hal.Transmit, true)
	return status.OK
}

func (e *Engine) end(result status.Code, total uint32, ticks uint16, host Host) status.Code {
	e.LEDs.Set(hal.Transmit, false)
	result = host.End(result)
	e.State = State{Length: total, Time: ticks, Result: result}
	return result
}

// Ticks10ms converts an elapsed time to the 10ms word of State.
func Ticks10ms(d time.Duration) uint16 {
	n := d / hal.Tick10ms
	if n > 0xffff {
		return 0xffff
	}
	return uint16(n)
}

// Plan is one block of a split transfer.
type Plan struct {
	Bank   byte
	Offset uint16
	Length uint16
}

// NextBlock sizes the block starting at base: never past the bank end,
// never more than blockSize, never more than remaining.  A zero blockSize
// means a whole bank.
func NextBlock(base, remaining uint32, blockSize uint16) Plan {
	offset := base & (BankSize - 1)
	n := uint32(BankSize) - offset
	if blockSize != 0 && uint32(blockSize) < n {
		n = uint32(blockSize)
	}
	if remaining < n {
		n = remaining
	}
	return Plan{Bank: byte(base >> BankShift), Offset: uint16(offset), Length: uint16(n)}
}

// Mem transfers length bytes at base in blocks.
func (e *Engine) Mem(mode byte, base, length uint32, blockSize uint16, host Host, block BlockFunc) status.Code {
	if st := e.begin(length, host); st != status.OK {
		return st
	}
	start := hal.NewDeadline(e.Clock, 0)

	result := status.OK
	var total uint32
	led := true
	for length > 0 {
		plan := NextBlock(base, length, blockSize)
		blk := &dtvtrans.Block{
			Mode:   mode,
			Bank:   plan.Bank,
			Offset: plan.Offset,
			Length: plan.Length,
			CRC16:  crc16.Init,
		}

		if result = block(blk, host); result != status.OK {
			break
		}
		if result = host.CheckBlock(blk.CRC16); result != status.OK {
			break
		}

		n := uint32(blk.Transferred)
		base += n
		length -= n
		total += n

		led = !led
		e.LEDs.Set(hal.Transmit, led)
	}

	return e.end(result, total, Ticks10ms(start.Elapsed()), host)
}

// MemBlock is a single block with caller given bank and offset.
func (e *Engine) MemBlock(mode, bank byte, offset, length uint16, host Host, block BlockFunc) status.Code {
	if st := e.begin(uint32(length), host); st != status.OK {
		return st
	}
	blk := &dtvtrans.Block{
		Mode:   mode,
		Bank:   bank,
		Offset: offset,
		Length: length,
		CRC16:  crc16.Init,
	}
	result := block(blk, host)
	return e.end(result, uint32(blk.Transferred), 0, host)
}
