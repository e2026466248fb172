// Package server is the bridge itself: it reads command lines from the host
// link, runs them against the device lines, and answers in hex.
package server

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/strickyak/dtv2ser/cmdline"
	"github.com/strickyak/dtv2ser/dtvlow"
	"github.com/strickyak/dtv2ser/dtvtrans"
	"github.com/strickyak/dtv2ser/hal"
	"github.com/strickyak/dtv2ser/param"
	"github.com/strickyak/dtv2ser/transfer"
	"github.com/strickyak/dtv2ser/uart"
)

const (
	VersionMajor = 0
	VersionMinor = 5
)

// pollInterval bounds how late the error LED goes off and ctx is noticed.
const pollInterval = 10 * time.Millisecond

type Server struct {
	Link   *uart.Link
	Lines  hal.Lines
	Clock  hal.Clock
	LEDs   hal.Indicators
	Params *param.Set
	Store  param.Store

	// Diagnose honors transfer modes other than Normal.
	Diagnose bool

	Logf func(format string, args ...any)

	Low    *dtvlow.Low
	Trans  *dtvtrans.Trans
	Engine *transfer.Engine

	mode    transfer.Mode
	editor  cmdline.Editor
	table   []cmdline.Command
	errorOn bool
	errorAt hal.Deadline
}

func New(link *uart.Link, lines hal.Lines, clock hal.Clock, leds hal.Indicators, params *param.Set, store param.Store) *Server {
	low := dtvlow.New(lines, clock, params)
	s := &Server{
		Link:   link,
		Lines:  lines,
		Clock:  clock,
		LEDs:   leds,
		Params: params,
		Store:  store,
		Logf:   log.Printf,
		Low:    low,
		Trans:  dtvtrans.New(low),
		Engine: transfer.NewEngine(clock, leds),
	}
	s.table = s.Commands()
	return s
}

// Mode is the transfer mode as set by `m`.
func (s *Server) Mode() transfer.Mode {
	return s.mode
}

func (s *Server) transferMode() transfer.Mode {
	if !s.Diagnose {
		return transfer.Normal
	}
	return s.mode
}

// Run serves command lines until ctx is done or the link closes.
func (s *Server) Run(ctx context.Context) error {
	s.Low.StateOff()
	s.LEDs.Set(hal.Ready, true)
	s.LEDs.Set(hal.Error, false)
	s.Link.StartReception()
	defer s.Link.StopReception()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, ok := s.Link.ReadTimeout(pollInterval)
		if ok {
			s.feed(b)
		} else if s.Link.Closed() {
			if err := s.Link.Err(); err != nil && err != io.EOF {
				return err
			}
			return nil
		}
		if s.errorOn && s.errorAt.Expired() {
			s.LEDs.Set(hal.Error, false)
			s.errorOn = false
		}
	}
}

func (s *Server) feed(b byte) {
	switch s.editor.Feed(b) {
	case cmdline.Ready:
		s.Link.StopReception()
		s.LEDs.Set(hal.Ready, false)

		s.handleReturn(s.editor.Line())

		s.Link.StartReception()
		s.LEDs.Set(hal.Ready, true)
	case cmdline.Error:
		s.setError()
	}
}

func (s *Server) setError() {
	s.LEDs.Set(hal.Error, true)
	s.errorOn = true
	s.errorAt = hal.NewDeadline(s.Clock, hal.Ticks10ms(s.Params.Word(param.ErrorConditionDelay)))
}

// handleReturn answers the parse status first; only a clean parse runs.
func (s *Server) handleReturn(line []byte) {
	cmd, args, st := cmdline.Dispatch(s.table, line)
	if st != cmdline.OK {
		s.setError()
		s.reply(byte(st))
		s.Logf("server: %q: %v", line, st)
		return
	}
	s.LEDs.Set(hal.Error, false)
	s.errorOn = false
	s.reply(byte(st))
	cmd.Exec(args)
}

// errorCondition blinks the error LED while throwing away whatever the host
// still sends, so the next command line starts clean.
func (s *Server) errorCondition() {
	s.LEDs.Set(hal.Error, true)
	s.Link.StartReception()

	on := true
	loops := int(s.Params.Byte(param.ErrorConditionLoops))
	for i := 0; i < loops; i++ {
		s.Clock.Sleep(hal.Ticks10ms(s.Params.Word(param.ErrorConditionDelay)))
		on = !on
		s.LEDs.Set(hal.Error, on)

		for s.Link.Available() {
			s.Link.Read()
		}
	}

	s.Link.StopReception()
	s.LEDs.Set(hal.Error, false)
}

func (s *Server) reply(b byte) {
	uart.SendHexByteCRLF(s.Link, b)
}

func (s *Server) replyWord(w uint16) {
	uart.SendHexWordCRLF(s.Link, w)
}
