package server

import (
	"github.com/strickyak/dtv2ser/cmdline"
	"github.com/strickyak/dtv2ser/hal"
	"github.com/strickyak/dtv2ser/param"
	"github.com/strickyak/dtv2ser/sertrans"
	"github.com/strickyak/dtv2ser/status"
	"github.com/strickyak/dtv2ser/transfer"
)

// Commands is the command table, in lookup order.
func (s *Server) Commands() []cmdline.Command {
	return []cmdline.Command{
		{Name: "m", Pattern: "b", Exec: s.cmdMode,
			Help: "set the transfer mode: 0 normal, 1 serial only, 2 dtv only"},
		{Name: "r", Pattern: "btt", Exec: s.cmdRead,
			Help: "read device memory: mode, address, length"},
		{Name: "w", Pattern: "btt", Exec: s.cmdWrite,
			Help: "write device memory: mode, address, length"},
		{Name: "t", Exec: s.cmdResult,
			Help: "result and time (10ms) of the last transfer"},
		{Name: "b", Pattern: "ww", Exec: s.cmdBoot,
			Help: "send a block to the boot loader: address, length"},
		{Name: "a", Pattern: "w", Exec: s.cmdAlive,
			Help: "probe the device, timeout in 10ms"},
		{Name: "c", Pattern: "bb*", Exec: s.cmdCommand,
			Help: "run a device opcode: opcode, output size (ff: sized by device), input bytes"},
		{Name: "g", Pattern: "w", Exec: s.cmdGo,
			Help: "jump to an address on the device"},
		{Name: "x", Pattern: "b", Exec: s.cmdReset,
			Help: "reset the device: 0 normal, 1 enter dtvtrans, 2 skip dtvmon"},
		{Name: "v", Exec: s.cmdVersion,
			Help: "bridge version"},
		{Name: "j", Exec: s.cmdJoy,
			Help: "binary joystick stream until exit"},
		{Name: "pbs", Pattern: "bb", Exec: s.cmdSetByteParam,
			Help: "set byte parameter: index, value"},
		{Name: "pbg", Pattern: "b", Exec: s.cmdGetByteParam,
			Help: "get byte parameter: index"},
		{Name: "pws", Pattern: "bw", Exec: s.cmdSetWordParam,
			Help: "set word parameter: index, value"},
		{Name: "pwg", Pattern: "b", Exec: s.cmdGetWordParam,
			Help: "get word parameter: index"},
		{Name: "pc", Pattern: "b", Exec: s.cmdParamStore,
			Help: "parameters: 0 reset, 1 load, 2 save"},
		{Name: "pq", Exec: s.cmdParamQuery,
			Help: "number of byte and word parameters"},
		{Name: "dbr", Pattern: "bbww", Exec: s.cmdBlockRead,
			Help: "read one block: mode, bank, offset, length"},
		{Name: "dbw", Pattern: "bbww", Exec: s.cmdBlockWrite,
			Help: "write one block: mode, bank, offset, length"},
	}
}

// ----- transfer -----

func (s *Server) cmdMode(args *cmdline.Args) {
	s.mode = transfer.Mode(args.Bytes[0])
}

func (s *Server) readEnds() transfer.Ends {
	return transfer.ForRead(s.transferMode(), &sertrans.Write{Port: s.Link}, s.Trans, s.Params)
}

func (s *Server) writeEnds() transfer.Ends {
	return transfer.ForWrite(s.transferMode(), &sertrans.Read{Port: s.Link}, s.Trans, s.Params)
}

func (s *Server) memTransfer(name string, ends transfer.Ends, args *cmdline.Args) {
	mode, addr, length := args.Bytes[0], args.DWords[0], args.DWords[1]
	st := s.Engine.Mem(mode, addr, length, s.Params.Word(param.TransferBlockSize), ends.Host, ends.Block)
	if st != status.OK {
		s.Logf("server: %s $%06x+$%x: %v after $%x bytes", name, addr, length, st, s.Engine.State.Length)
		s.errorCondition()
	}
}

func (s *Server) blockTransfer(name string, ends transfer.Ends, args *cmdline.Args) {
	mode, bank := args.Bytes[0], args.Bytes[1]
	offset, length := args.Words[0], args.Words[1]
	st := s.Engine.MemBlock(mode, bank, offset, length, ends.Host, ends.Block)
	if st != status.OK {
		s.Logf("server: %s bank $%02x $%04x+$%x: %v", name, bank, offset, length, st)
		s.errorCondition()
	}
}

func (s *Server) cmdRead(args *cmdline.Args) {
	s.memTransfer("read", s.readEnds(), args)
}

func (s *Server) cmdWrite(args *cmdline.Args) {
	s.memTransfer("write", s.writeEnds(), args)
}

func (s *Server) cmdBlockRead(args *cmdline.Args) {
	s.blockTransfer("block read", s.readEnds(), args)
}

func (s *Server) cmdBlockWrite(args *cmdline.Args) {
	s.blockTransfer("block write", s.writeEnds(), args)
}

func (s *Server) cmdResult(*cmdline.Args) {
	s.reply(byte(s.Engine.State.Result))
	s.replyWord(s.Engine.State.Time)
}

// cmdBoot streams length bytes from the host into the boot loader.  The
// host gets a zero byte to start, then the raw status, then on success the
// check byte.
func (s *Server) cmdBoot(args *cmdline.Args) {
	addr, length := args.Words[0], args.Words[1]
	start := hal.NewDeadline(s.Clock, 0)

	s.Link.StartReception()
	st := status.ClientTimeout
	var chk byte
	if s.Link.Send(0) {
		led := true
		s.LEDs.Set(hal.Transmit, led)
		st, chk = s.Trans.SendBoot(addr, length, &sertrans.Read{Port: s.Link}, func() {
			led = !led
			s.LEDs.Set(hal.Transmit, led)
		})
		s.LEDs.Set(hal.Transmit, false)
	}
	s.Link.Send(byte(st))
	if st == status.OK {
		s.Link.Send(chk)
	}
	s.Link.StopReception()

	s.Engine.State.Time = transfer.Ticks10ms(start.Elapsed())
	s.Engine.State.Result = st
	if st != status.OK {
		s.Logf("server: boot $%04x+$%x: %v", addr, length, st)
		s.errorCondition()
	}
}

// ----- device -----

func (s *Server) cmdAlive(args *cmdline.Args) {
	s.LEDs.Set(hal.Transmit, true)
	s.Low.StateSend()
	st := s.Low.IsAlive(args.Words[0])
	s.Low.StateOff()
	s.LEDs.Set(hal.Transmit, false)
	s.reply(byte(st))
}

func (s *Server) cmdCommand(args *cmdline.Args) {
	cmd, outSize := args.Bytes[0], args.Bytes[1]
	st := s.Trans.Command(cmd, args.Bytes[2:], outSize, s.Link)
	s.reply(byte(st))
}

func (s *Server) cmdGo(args *cmdline.Args) {
	s.LEDs.Set(hal.Transmit, true)
	st := s.Trans.ExecMem(args.Words[0])
	s.LEDs.Set(hal.Transmit, false)
	s.reply(byte(st))
}

func (s *Server) cmdReset(args *cmdline.Args) {
	s.LEDs.Set(hal.Transmit, true)
	s.Low.ResetDevice(args.Bytes[0])
	s.LEDs.Set(hal.Transmit, false)
	s.reply(0)
}

func (s *Server) cmdVersion(*cmdline.Args) {
	s.replyWord(VersionMajor<<8 | VersionMinor)
}

// cmdJoy runs the joystick stream: raw command bytes until exit or a bad
// one.  The host gets a zero byte to start and the result byte at the end.
func (s *Server) cmdJoy(*cmdline.Args) {
	s.Link.StartReception()
	s.Link.Send(0)
	s.Low.StateJoy()

	result := byte(hal.JoyResultOK)
	led := false
loop:
	for {
		b, ok := s.Link.Read()
		if !ok {
			if s.Link.Closed() {
				result = hal.JoyResultError
				break
			}
			continue
		}
		value := b & hal.JoyMask
		switch b & hal.JoyCmdMask {
		case hal.JoyCmdExit:
			break loop
		case hal.JoyCmdOut:
			hal.JoyOut(s.Lines, value)
			led = !led
			s.LEDs.Set(hal.Transmit, led)
		case hal.JoyCmdWait:
			s.Clock.Sleep(hal.Ticks10ms(uint16(value)))
		default:
			result = hal.JoyResultError
			break loop
		}
	}

	hal.JoyOut(s.Lines, 0)
	s.Low.StateOff()

	s.Link.Send(result)
	s.Link.StopReception()
	s.LEDs.Set(hal.Transmit, false)

	if result != hal.JoyResultOK {
		s.Logf("server: joystick stream failed")
		s.errorCondition()
	}
}

// ----- parameters -----

func (s *Server) cmdSetByteParam(args *cmdline.Args) {
	i := int(args.Bytes[0])
	if i >= param.NumBytes {
		s.reply(1)
		return
	}
	s.Params.SetByte(i, args.Bytes[1])
	s.reply(0)
}

func (s *Server) cmdGetByteParam(args *cmdline.Args) {
	i := int(args.Bytes[0])
	if i >= param.NumBytes {
		s.reply(0xff)
		return
	}
	s.reply(s.Params.Byte(i))
}

func (s *Server) cmdSetWordParam(args *cmdline.Args) {
	i := int(args.Bytes[0])
	if i >= param.NumWords {
		s.reply(1)
		return
	}
	s.Params.SetWord(i, args.Words[0])
	s.reply(0)
}

func (s *Server) cmdGetWordParam(args *cmdline.Args) {
	i := int(args.Bytes[0])
	if i >= param.NumWords {
		s.replyWord(0xffff)
		return
	}
	s.replyWord(s.Params.Word(i))
}

const (
	ParamReset = 0
	ParamLoad  = 1
	ParamSave  = 2
)

func (s *Server) cmdParamStore(args *cmdline.Args) {
	result := param.OK
	switch {
	case args.Bytes[0] == ParamReset:
		s.Params.Reset()
	case s.Store == nil:
		result = param.NotReady
	case args.Bytes[0] == ParamLoad:
		result = s.Params.Load(s.Store)
	default:
		result = s.Params.Save(s.Store)
	}
	s.reply(byte(result))
}

func (s *Server) cmdParamQuery(*cmdline.Args) {
	s.reply(param.NumBytes)
	s.reply(param.NumWords)
}
