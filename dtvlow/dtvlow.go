// Package dtvlow moves single bytes over the DTV joystick port.
//
// Each byte is four clock phases.  The bridge drives CLK and waits for the
// DTV to mirror it on ACK; the payload rides on D0..D2 as 3+3+2 bits (the
// boot loader uses 2+2+2+2).  A phase whose ack does not arrive in time
// fails with NoAck1..NoAck4.
package dtvlow

import (
	"github.com/strickyak/dtv2ser/hal"
	"github.com/strickyak/dtv2ser/param"
	"github.com/strickyak/dtv2ser/status"
)

// Reset modes.
const (
	ResetNormal   = 0
	ResetDtvtrans = 1 // knock on D0
	ResetNoDtvmon = 2 // knock on D1
)

type Low struct {
	Lines  hal.Lines
	Clock  hal.Clock
	Params *param.Set
}

func New(lines hal.Lines, clock hal.Clock, params *param.Set) *Low {
	return &Low{Lines: lines, Clock: clock, Params: params}
}

// StateOff releases everything and leaves the lines idle high.
func (o *Low) StateOff() {
	o.Lines.SetState(hal.Off)
	o.clear()
}

func (o *Low) StateSend() {
	o.Lines.SetState(hal.Send)
	o.clear()
}

func (o *Low) StateRecv() {
	o.Lines.SetState(hal.Recv)
	o.clear()
}

func (o *Low) StateJoy() {
	o.Lines.SetState(hal.Joy)
	hal.JoyOut(o.Lines, 0)
}

func (o *Low) clear() {
	o.Lines.SetReset(true)
	o.Lines.SetData(7)
	o.Lines.SetClk(true)
	o.Lines.SetAck(true)
}

func (o *Low) waitAck(want bool) bool {
	budget := hal.Ticks100us(o.Params.Word(param.WaitForAckDelay))
	return hal.PollUntil(o.Clock, budget, func() bool {
		return o.Lines.Ack() == want
	})
}

// phase drives data and clock, then waits for the mirrored ack.
func (o *Low) phase(n int, data byte, clk bool) status.Code {
	o.Lines.SetData(data)
	o.Lines.SetClk(clk)
	if !o.waitAck(clk) {
		return status.NoAck(n)
	}
	return status.OK
}

// SendByte needs the Send state.
func (o *Low) SendByte(b byte) status.Code {
	if st := o.phase(1, b>>5, false); st != status.OK {
		return st
	}
	if st := o.phase(2, b>>2, true); st != status.OK {
		return st
	}
	if st := o.phase(3, b&3, false); st != status.OK {
		return st
	}
	return o.phase(4, 7, true)
}

// RecvByte needs the Recv state.  Partial bits are returned with a failure.
func (o *Low) RecvByte() (byte, status.Code) {
	settle := o.Params.Byte(param.RecvDelay)
	var b byte

	sample := func(n int, clk bool) bool {
		o.Lines.SetClk(clk)
		if !o.waitAck(clk) {
			return false
		}
		o.Lines.Settle(settle)
		return true
	}

	if !sample(1, false) {
		return b, status.NoAck1
	}
	b |= (o.Lines.Data() & 7) << 5
	if !sample(2, true) {
		return b, status.NoAck2
	}
	b |= (o.Lines.Data() & 7) << 2
	if !sample(3, false) {
		return b, status.NoAck3
	}
	b |= o.Lines.Data() & 3

	o.Lines.SetClk(true)
	if !o.waitAck(true) {
		return b, status.NoAck4
	}
	return b, status.OK
}

// SendByteBoot sends two bits per phase, high bits first, for the boot loader.
func (o *Low) SendByteBoot(b byte) status.Code {
	for i := 0; i < 4; i++ {
		shift := uint(6 - 2*i)
		clk := i&1 == 1
		if st := o.phase(i+1, (b>>shift)&3, clk); st != status.OK {
			return st
		}
	}
	return status.OK
}

// IsAlive clocks four steps and wants each mirrored steadily on ack.
// The timeout is in 10ms ticks.  Needs the Send state.
func (o *Low) IsAlive(timeout uint16) status.Code {
	idle := o.Params.Word(param.IsAliveIdle)
	repeat := int(o.Params.Byte(param.IsAliveRepeat))
	delay := uint16(o.Params.Byte(param.IsAliveDelay))

	steps := 0
	d := hal.NewDeadline(o.Clock, hal.Ticks10ms(timeout))
	for !d.Expired() {
		want := steps&1 == 1
		o.Lines.SetClk(want)

		for i := 0; i < repeat; {
			if o.Lines.Ack() != want {
				break
			}
			i++
			if i == repeat {
				steps++
				if steps == 4 {
					return status.OK
				}
			} else {
				o.Clock.Sleep(hal.Ticks100us(delay))
			}
		}

		o.Clock.Sleep(hal.Ticks100us(idle))
	}
	return status.NotAlive
}

// ResetDevice pulses reset.  A nonzero mode holds that pattern on the data
// lines with ack low while reset is released, which the DTV reads as a knock.
func (o *Low) ResetDevice(mode byte) {
	pre := hal.Ticks100us(o.Params.Word(param.PrepareResetDelay))

	o.Lines.SetReset(false)
	o.Clock.Sleep(pre)

	if mode != 0 {
		o.Lines.SetData(mode)
		o.Lines.SetAck(false)
	}
	o.Clock.Sleep(pre)

	o.Lines.SetReset(true)
	o.Clock.Sleep(hal.Ticks10ms(o.Params.Word(param.ResetDelay)))

	o.Lines.SetData(7)
	o.Lines.SetAck(true)
}
