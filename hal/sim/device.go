// Package sim is a simulated DTV on the far end of the joystick port.
//
// A Device implements hal.Lines.  It mirrors every clock edge on ack (after
// an optional latency), shifts nibbles in while the bridge sends and out
// while the bridge receives, and runs the dtvtrans server side: memory read
// and write blocks, the legacy exec opcode, a table of generic commands, and
// the boot loader.  Faults can be injected to stop acking at a given phase
// or to play dead.
package sim

import (
	"sync"
	"time"

	"github.com/strickyak/dtv2ser/crc16"
	"github.com/strickyak/dtv2ser/hal"
)

// MemSize covers every bank a block header can name.
const MemSize = 256 * 0x4000

// dtvtrans opcodes understood by the device.
const (
	OpRead  = 0x01
	OpWrite = 0x02
	OpExec  = 0x03
)

// Command is a generic opcode: In argument bytes, then Run makes the output.
type Command struct {
	Name string
	In   int
	Run  func(d *Device, in []byte) []byte
}

type ResetEvent struct {
	Mode byte // data lines held during the knock, 0 without a knock
}

type BootImage struct {
	Start, End uint16
	Data       []byte
	Check      byte
	Good       bool
}

type SysCall struct {
	Mode                      byte
	Addr                      uint16
	SR, Acc, XR, YR, IOConfig byte
}

type Device struct {
	Clock    hal.Clock
	Latency  time.Duration // slept on every clock edge before ack follows
	PollStep time.Duration // slept on every ack sample

	// faults
	NoAckPhase int // 1..4: stop answering at this phase
	NoAckAfter int // ...once this many bytes went through
	Dead       bool
	Corrupt    int // flip bit 0 of the Nth byte on the wire, counting from 1

	// BootMode makes the device a boot loader: 2 bits per phase.
	BootMode bool

	Commands map[byte]Command
	Revision [2]byte
	Impl     string
	SysRegs  [4]byte

	mu sync.Mutex

	state   hal.State
	hostD   byte
	clk     bool
	hostAck bool
	reset   bool
	devD    byte
	devAck  bool
	stuck   bool
	phase   int
	cur     byte
	counted int

	in  []byte
	out []byte

	mem []byte

	resets  []ResetEvent
	execs   []uint16
	boots   []BootImage
	syscall []SysCall
	joy     []byte
	unknown []byte
}

// NewDevice makes a healthy device on a virtual or real clock.
func NewDevice(clock hal.Clock) *Device {
	d := &Device{
		Clock:    clock,
		Revision: [2]byte{1, 0},
		Impl:     "dtv2ser sim",
		mem:      make([]byte, MemSize),
		hostD:    7,
		devD:     7,
		clk:      true,
		hostAck:  true,
		reset:    true,
		devAck:   true,
	}
	if _, virtual := clock.(*Clock); virtual {
		d.PollStep = 10 * time.Microsecond
	}
	d.Commands = DefaultCommands()
	return d
}

// DefaultCommands is a small dtvtrans command set.
func DefaultCommands() map[byte]Command {
	return map[byte]Command{
		0x04: {"sys", 8, func(d *Device, in []byte) []byte {
			d.syscall = append(d.syscall, SysCall{
				Mode: in[0], Addr: uint16(in[1]) | uint16(in[2])<<8,
				SR: in[3], Acc: in[4], XR: in[5], YR: in[6], IOConfig: in[7],
			})
			return nil
		}},
		0x05: {"sys_result", 1, func(d *Device, in []byte) []byte {
			return d.SysRegs[:]
		}},
		0x61: {"color", 3, func(d *Device, in []byte) []byte {
			return nil
		}},
		0x80: {"query_revision", 0, func(d *Device, in []byte) []byte {
			return d.Revision[:]
		}},
		0x81: {"query_implementation", 0, func(d *Device, in []byte) []byte {
			return append([]byte{byte(len(d.Impl))}, d.Impl...)
		}},
	}
}

// ---------- hal.Lines ----------

func (d *Device) SetState(s hal.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
	d.phase = 0
	d.devD = 7
	d.devAck = d.clk
	if s == hal.Off {
		d.in = nil
		d.out = nil
		d.stuck = false
	}
}

func (d *Device) SetData(v byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hostD = v & 7
}

func (d *Device) Data() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hostD & d.devD & 7
}

func (d *Device) SetAck(high bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hostAck = high
	// JoyOut writes ack last, so the full mask is on the lines now.
	if d.state == hal.Joy {
		d.joy = append(d.joy, d.joyMask())
	}
}

func (d *Device) Ack() bool {
	if d.PollStep > 0 {
		d.Clock.Sleep(d.PollStep)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devAck && d.hostAck
}

func (d *Device) SetReset(high bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if high && !d.reset {
		var mode byte
		if !d.hostAck {
			mode = d.hostD
		}
		d.resets = append(d.resets, ResetEvent{Mode: mode})
		d.in = nil
		d.out = nil
		d.phase = 0
		d.stuck = false
	}
	d.reset = high
}

func (d *Device) Settle(loops byte) {}

func (d *Device) SetClk(high bool) {
	d.mu.Lock()
	if high == d.clk {
		d.mu.Unlock()
		return
	}
	d.clk = high
	if d.Dead || d.stuck || !d.reset || (d.state != hal.Send && d.state != hal.Recv) {
		d.mu.Unlock()
		return
	}
	if d.NoAckPhase == d.phase+1 && d.counted >= d.NoAckAfter {
		d.stuck = true
		d.mu.Unlock()
		return
	}
	latency := d.Latency
	d.mu.Unlock()

	if latency > 0 {
		d.Clock.Sleep(latency)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case hal.Send:
		d.shiftIn()
	case hal.Recv:
		d.shiftOut()
	}
	d.devAck = high
	d.phase++
	if d.phase == 4 {
		d.phase = 0
		d.counted++
		if d.state == hal.Send {
			if d.counted == d.Corrupt {
				d.cur ^= 1
			}
			d.received(d.cur)
		}
	}
}

func (d *Device) shiftIn() {
	v := d.hostD & 7
	if d.BootMode {
		if d.phase == 0 {
			d.cur = 0
		}
		d.cur |= (v & 3) << uint(6-2*d.phase)
		return
	}
	switch d.phase {
	case 0:
		d.cur = v << 5
	case 1:
		d.cur |= v << 2
	case 2:
		d.cur |= v & 3
	}
}

func (d *Device) shiftOut() {
	switch d.phase {
	case 0:
		d.cur = 0xff
		if len(d.out) > 0 {
			d.cur = d.out[0]
			d.out = d.out[1:]
		}
		if d.counted+1 == d.Corrupt {
			d.cur ^= 1
		}
		d.devD = d.cur >> 5 & 7
	case 1:
		d.devD = d.cur >> 2 & 7
	case 2:
		d.devD = d.cur & 3
	case 3:
		d.devD = 7
	}
}

// ---------- dtvtrans server side ----------

func (d *Device) addr(bank byte, offset uint16, i int) int {
	return (int(bank)*0x4000 + int(offset) + i) % MemSize
}

func (d *Device) received(b byte) {
	if d.BootMode {
		d.bootReceived(b)
		return
	}
	d.in = append(d.in, b)
	in := d.in
	op := in[0]
	switch op {
	case OpRead:
		if len(in) < 7 {
			return
		}
		bank, offset, n := in[2], le16(in[3:]), int(le16(in[5:]))
		var chk byte
		for i := 0; i < n; i++ {
			v := d.mem[d.addr(bank, offset, i)]
			d.out = append(d.out, v)
			chk = crc16.Sum(chk, v)
		}
		d.out = append(d.out, chk)
		d.in = nil

	case OpWrite:
		if len(in) < 7 {
			return
		}
		bank, offset, n := in[2], le16(in[3:]), int(le16(in[5:]))
		i := len(in) - 8
		if i >= 0 && i < n {
			d.mem[d.addr(bank, offset, i)] = b
		}
		if len(in) == 7+n+1 {
			var chk byte
			for _, v := range in[7 : 7+n] {
				chk = crc16.Sum(chk, v)
			}
			d.out = append(d.out, chk)
			d.in = nil
		}

	case OpExec:
		if len(in) == 3 {
			d.execs = append(d.execs, le16(in[1:]))
			d.in = nil
		}

	default:
		cmd, ok := d.Commands[op]
		if !ok {
			d.unknown = append(d.unknown, op)
			d.in = nil
			return
		}
		if len(in) == 1+cmd.In {
			d.out = append(d.out, cmd.Run(d, in[1:])...)
			d.in = nil
		}
	}
}

// The boot loader takes start and end big endian, the data, then a check sum.
func (d *Device) bootReceived(b byte) {
	d.in = append(d.in, b)
	in := d.in
	if len(in) < 4 {
		return
	}
	start := uint16(in[0])<<8 | uint16(in[1])
	end := uint16(in[2])<<8 | uint16(in[3])
	if end < start {
		// Nothing to load; only the check sum follows.
		if len(in) < 5 {
			return
		}
		d.boots = append(d.boots, BootImage{Start: start, End: end, Check: in[4]})
		d.in = nil
		return
	}
	n := int(end-start) + 1
	if len(in) < 4+n+1 {
		return
	}
	data := append([]byte(nil), in[4:4+n]...)
	var chk byte
	for i, v := range data {
		d.mem[(int(start)+i)%MemSize] = v
		chk = crc16.Sum(chk, v)
	}
	d.boots = append(d.boots, BootImage{
		Start: start, End: end, Data: data,
		Check: in[4+n], Good: chk == in[4+n],
	})
	d.in = nil
}

func le16(bb []byte) uint16 {
	return uint16(bb[0]) | uint16(bb[1])<<8
}

func (d *Device) joyMask() byte {
	v := d.hostD & 7
	if d.clk {
		v |= hal.JoyRight
	}
	if d.hostAck {
		v |= hal.JoyFire
	}
	return ^v & hal.JoyMask
}

// ---------- inspection ----------

func (d *Device) Peek(addr int, n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = d.mem[(addr+i)%MemSize]
	}
	return out
}

func (d *Device) Poke(addr int, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, b := range data {
		d.mem[(addr+i)%MemSize] = b
	}
}

// Exchanged counts bytes that completed all four phases.
func (d *Device) Exchanged() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counted
}

func (d *Device) Resets() []ResetEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ResetEvent(nil), d.resets...)
}

func (d *Device) Execs() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint16(nil), d.execs...)
}

func (d *Device) Boots() []BootImage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]BootImage(nil), d.boots...)
}

func (d *Device) SysCalls() []SysCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SysCall(nil), d.syscall...)
}

// JoyLog lists every joystick mask put on the lines.
func (d *Device) JoyLog() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.joy...)
}

func (d *Device) Unknown() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.unknown...)
}

func (d *Device) State() hal.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SetFault changes the injected fault between commands.
func (d *Device) SetFault(phase, after int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.NoAckPhase = phase
	d.NoAckAfter = after
}
