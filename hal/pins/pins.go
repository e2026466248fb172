// Package pins drives the joystick port lines from host GPIOs with periph.
//
// Every line is open drain, like the port itself: high releases the pin to
// its pull-up, low drives it.  What one side holds low reads low on both.
package pins

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/strickyak/dtv2ser/hal"
)

// Config names the GPIOs as gpioreg knows them, e.g. "GPIO17".
type Config struct {
	D0, D1, D2 string
	Clk        string
	Ack        string
	Reset      string
}

var DefaultConfig = Config{
	D0:    "GPIO17",
	D1:    "GPIO27",
	D2:    "GPIO22",
	Clk:   "GPIO23",
	Ack:   "GPIO24",
	Reset: "GPIO25",
}

type Lines struct {
	data  [3]gpio.PinIO
	clk   gpio.PinIO
	ack   gpio.PinIO
	reset gpio.PinIO

	state hal.State

	mu  sync.Mutex
	err error
}

// Open initializes the host drivers and finds the pins.  All lines start
// released.
func Open(cfg Config) (*Lines, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	var missing []string
	lookup := func(name string) gpio.PinIO {
		p := gpioreg.ByName(name)
		if p == nil {
			missing = append(missing, name)
		}
		return p
	}
	o := &Lines{
		data:  [3]gpio.PinIO{lookup(cfg.D0), lookup(cfg.D1), lookup(cfg.D2)},
		clk:   lookup(cfg.Clk),
		ack:   lookup(cfg.Ack),
		reset: lookup(cfg.Reset),
	}
	if len(missing) > 0 {
		return nil, errors.Errorf("no such gpio: %v", missing)
	}
	o.SetState(hal.Off)
	return o, o.Err()
}

// Err is the first pin error seen.  hal.Lines has no error results.
func (o *Lines) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Lines) fail(err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err == nil {
		o.err = err
	}
}

func (o *Lines) drive(p gpio.PinIO, high bool) {
	if high {
		o.fail(p.In(gpio.PullUp, gpio.NoEdge))
	} else {
		o.fail(p.Out(gpio.Low))
	}
}

func (o *Lines) SetState(s hal.State) {
	o.state = s
	if s == hal.Off {
		for _, p := range o.data {
			o.drive(p, true)
		}
		o.drive(o.clk, true)
		o.drive(o.ack, true)
		o.drive(o.reset, true)
	}
}

func (o *Lines) SetData(v byte) {
	for i, p := range o.data {
		o.drive(p, v&(1<<uint(i)) != 0)
	}
}

func (o *Lines) Data() byte {
	var v byte
	for i, p := range o.data {
		if p.Read() == gpio.High {
			v |= 1 << uint(i)
		}
	}
	return v
}

func (o *Lines) SetClk(high bool)   { o.drive(o.clk, high) }
func (o *Lines) SetAck(high bool)   { o.drive(o.ack, high) }
func (o *Lines) Ack() bool          { return o.ack.Read() == gpio.High }
func (o *Lines) SetReset(high bool) { o.drive(o.reset, high) }

// Settle gives the data lines a few reads to follow the device.
func (o *Lines) Settle(loops byte) {
	for i := byte(0); i < loops; i++ {
		o.data[0].Read()
	}
}

// String lists the pins for logging.
func (o *Lines) String() string {
	return fmt.Sprintf("d=%s,%s,%s clk=%s ack=%s reset=%s (%v)",
		o.data[0], o.data[1], o.data[2], o.clk, o.ack, o.reset, o.state)
}
