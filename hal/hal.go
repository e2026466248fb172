// Package hal is the capability layer between the protocol code and a board.
//
// A board provides the DTV joystick-port wires (three data lines, clock,
// acknowledge, reset) through Lines and a monotonic time source through
// Clock.  Everything above this package (dtvlow, dtvtrans, transfer,
// cmdline, server) depends only on these interfaces.
package hal

import (
	"log"
	"time"
)

// State is the direction setup of the DTV lines.
type State int

const (
	// Off releases every line (input + pullup).  Safe idle.
	Off State = iota
	// Send drives data and clock, ack is an input.
	Send
	// Recv drives clock, data and ack are inputs.
	Recv
	// Joy drives all five joystick lines (data, clock, ack) as outputs.
	Joy
)

var StateNames = map[State]string{
	Off:  "off",
	Send: "send",
	Recv: "recv",
	Joy:  "joy",
}

func (s State) String() string {
	if name, ok := StateNames[s]; ok {
		return name
	}
	return "?"
}

// Lines are the wires of the dtvtrans cable.
//
// Levels are logical: true is high.  A released open-drain line reads high.
type Lines interface {
	SetState(s State)

	// SetData drives the low three bits onto D0..D2.
	SetData(v byte)
	// Data samples D0..D2.
	Data() byte

	SetClk(high bool)
	SetAck(high bool)
	Ack() bool
	SetReset(high bool)

	// Settle waits a few loops before sampling data after an ack edge.
	Settle(loops byte)
}

// Clock is a free running monotonic time source.
type Clock interface {
	Now() time.Duration
	Sleep(d time.Duration)
}

// Tick sizes of the parameter units.
const (
	Tick100us = 100 * time.Microsecond
	Tick10ms  = 10 * time.Millisecond
)

func Ticks100us(n uint16) time.Duration { return time.Duration(n) * Tick100us }
func Ticks10ms(n uint16) time.Duration  { return time.Duration(n) * Tick10ms }

// Deadline is a budget sampled once from a Clock.
type Deadline struct {
	clock  Clock
	start  time.Duration
	budget time.Duration
}

func NewDeadline(c Clock, budget time.Duration) Deadline {
	return Deadline{clock: c, start: c.Now(), budget: budget}
}

func (d Deadline) Elapsed() time.Duration {
	return d.clock.Now() - d.start
}

// Expired is true once the elapsed time reached the budget.
// A zero budget is expired immediately.
func (d Deadline) Expired() bool {
	return d.Elapsed() >= d.budget
}

// PollUntil calls cond until it returns true or the budget is spent.
func PollUntil(c Clock, budget time.Duration, cond func() bool) bool {
	d := NewDeadline(c, budget)
	for !d.Expired() {
		if cond() {
			return true
		}
	}
	return false
}

// SystemClock is the wall clock of the host.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() time.Duration { return time.Since(c.start) }

func (c *SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// LED names the three status indicators of the box.
type LED int

const (
	Ready LED = iota
	Error
	Transmit
)

var LEDNames = map[LED]string{
	Ready:    "ready",
	Error:    "error",
	Transmit: "transmit",
}

// Indicators switch status LEDs.
type Indicators interface {
	Set(led LED, on bool)
}

// NopIndicators ignores every change.
type NopIndicators struct{}

func (NopIndicators) Set(LED, bool) {}

// LogIndicators reports LED changes through log, skipping repeats.
type LogIndicators struct {
	state [3]bool
}

func (o *LogIndicators) Set(led LED, on bool) {
	if o.state[led] == on {
		return
	}
	o.state[led] = on
	word := "off"
	if on {
		word = "on"
	}
	log.Printf("led %s %s", LEDNames[led], word)
}

// Joystick bits of the stream sub-protocol.
const (
	JoyUp    = 0x01
	JoyDown  = 0x02
	JoyLeft  = 0x04
	JoyRight = 0x08
	JoyFire  = 0x10
	JoyMask  = 0x1f
)

// Stream bytes: command in the top three bits, value in the joystick bits.
const (
	JoyCmdOut  = 0x00 // value is the mask
	JoyCmdWait = 0x20 // value is 10ms ticks
	JoyCmdExit = 0x80
	JoyCmdMask = 0xe0

	JoyResultOK    = 0
	JoyResultError = 1
)

// JoyOut puts a joystick mask on the lines.  The port is active low:
// up, down and left ride on D0..D2, right on CLK, fire on ACK.
// The lines must be in the Joy state.
func JoyOut(l Lines, mask byte) {
	v := ^mask & JoyMask
	l.SetData(v & 7)
	l.SetClk(v&JoyRight != 0)
	l.SetAck(v&JoyFire != 0)
}
