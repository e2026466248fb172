// Command dtv2ser-server runs the bridge on a host: command lines come in on
// a serial port, and the DTV hangs off GPIO pins or is simulated.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/jacobsa/go-serial/serial"
	"github.com/strickyak/gomar/gu"
	bugst "go.bug.st/serial"

	"github.com/strickyak/dtv2ser/hal"
	"github.com/strickyak/dtv2ser/hal/pins"
	"github.com/strickyak/dtv2ser/hal/sim"
	"github.com/strickyak/dtv2ser/param"
	"github.com/strickyak/dtv2ser/server"
	"github.com/strickyak/dtv2ser/uart"
)

var WIRE = flag.String("wire", "/dev/ttyACM0", "serial device the host PC talks to")
var BAUD = flag.Uint("baud", 115200, "serial device baud rate")
var HAL = flag.String("hal", "gpio", "device lines: gpio or sim")
var PARAMS = flag.String("params", "dtv2ser.params", "file keeping the saved parameters")
var DIAGNOSE = flag.Bool("diagnose", false, "honor transfer modes 1 and 2")
var LIST = flag.Bool("list", false, "list serial ports and exit")
var STATSVIEW = flag.String("statsview", "", "serve runtime stats on this address, e.g. localhost:12600")
var VERBOSE = flag.Bool("v", false, "log LED changes")

var PinD0 = flag.String("pin_d0", pins.DefaultConfig.D0, "gpio for joystick D0 (up)")
var PinD1 = flag.String("pin_d1", pins.DefaultConfig.D1, "gpio for joystick D1 (down)")
var PinD2 = flag.String("pin_d2", pins.DefaultConfig.D2, "gpio for joystick D2 (left)")
var PinClk = flag.String("pin_clk", pins.DefaultConfig.Clk, "gpio for CLK (right)")
var PinAck = flag.String("pin_ack", pins.DefaultConfig.Ack, "gpio for ACK (fire)")
var PinReset = flag.String("pin_reset", pins.DefaultConfig.Reset, "gpio for the DTV reset line")

var LogLimit = flag.Uint64("logmax", 1<<30, "maximum bytes to log to stderr")

func main() {
	log.SetFlags(0)
	log.SetPrefix("dtv2ser: ")
	flag.Parse()
	InstallLimitedLogWriter()

	if *LIST {
		for _, p := range gu.Value(bugst.GetPortsList()) {
			fmt.Println(p)
		}
		return
	}

	if *STATSVIEW != "" {
		go func() {
			viewer.SetConfiguration(viewer.WithAddr(*STATSVIEW))
			mgr := statsview.New()
			mgr.Start()
		}()
		Logf("stats at http://%s/debug/statsview", *STATSVIEW)
	}

	killed := make(chan os.Signal, 1)
	signal.Notify(killed, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-killed
		Logf("\n*** STOPPING ON SIGNAL %q", sig)
		os.Exit(3)
	}()

	lines, clock := OpenLines()
	var leds hal.Indicators = hal.NopIndicators{}
	if *VERBOSE {
		leds = &hal.LogIndicators{}
	}

	params := param.New()
	store := param.FileStore{Path: *PARAMS}
	if r := params.Init(store); r != param.OK {
		Logf("parameters from %q: %v, using defaults", *PARAMS, r)
	}

	for {
		TryRun(lines, clock, leds, params, store)
		time.Sleep(1 * time.Second)
	}
}

// OpenLines picks the device backend.
func OpenLines() (hal.Lines, hal.Clock) {
	clock := hal.NewSystemClock()
	switch *HAL {
	case "sim":
		return sim.NewDevice(clock), clock
	case "gpio":
		lines, err := pins.Open(pins.Config{
			D0:    *PinD0,
			D1:    *PinD1,
			D2:    *PinD2,
			Clk:   *PinClk,
			Ack:   *PinAck,
			Reset: *PinReset,
		})
		if err != nil {
			log.Fatalf("cannot open gpio lines: %v", err)
		}
		Logf("lines: %v", lines)
		return lines, clock
	}
	log.Fatalf("unknown -hal %q, want gpio or sim", *HAL)
	panic("not reached")
}

func TryRun(lines hal.Lines, clock hal.Clock, leds hal.Indicators, params *param.Set, store param.Store) {
	defer func() {
		r := recover()
		if r != nil {
			fmt.Printf("[recover: %q]\n", r)
		}
	}()
	Run(lines, clock, leds, params, store)
}

// Run serves one session on the serial port until it closes.
func Run(lines hal.Lines, clock hal.Clock, leds hal.Indicators, params *param.Set, store param.Store) {
	options := serial.OpenOptions{
		PortName:        *WIRE,
		BaudRate:        *BAUD,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}
	port, err := serial.Open(options)
	if err != nil {
		Panicf("serial.Open: %v", err)
	}
	defer port.Close()

	link := uart.NewLink(port, params)
	defer link.Close()

	srv := server.New(link, lines, clock, leds, params, store)
	srv.Diagnose = *DIAGNOSE
	Logf("serving %s at %d baud, version %d.%d", *WIRE, *BAUD, server.VersionMajor, server.VersionMinor)

	err = srv.Run(context.Background())
	if err != nil && err != io.EOF {
		Panicf("server: %v", err)
	}
	Logf("%s closed", *WIRE)
}
