package transfer

import (
	"github.com/strickyak/dtv2ser/crc16"
	"github.com/strickyak/dtv2ser/dtvtrans"
	"github.com/strickyak/dtv2ser/param"
	"github.com/strickyak/dtv2ser/status"
)

// Mode picks which ends of a transfer are real.
type Mode byte

const (
	Normal     Mode = 0 // serial host and device
	SerialOnly Mode = 1 // serial host, pattern instead of the device
	DtvOnly    Mode = 2 // device, pattern instead of the serial host
)

var ModeNames = map[Mode]string{
	Normal:     "normal",
	SerialOnly: "serial only",
	DtvOnly:    "dtv only",
}

// DiagnoseHost stands in for the serial host with the diagnose pattern.
// Reading supplies the pattern; otherwise every byte must equal it.
type DiagnoseHost struct {
	Params  *param.Set
	Reading bool
}

func (h *DiagnoseHost) Begin(length uint32) status.Code   { return status.OK }
func (h *DiagnoseHost) CheckBlock(crc uint16) status.Code { return status.OK }
func (h *DiagnoseHost) End(last status.Code) status.Code  { return last }

func (h *DiagnoseHost) TransferByte(data *byte) status.Code {
	pattern := h.Params.Byte(param.DiagnosePattern)
	if h.Reading {
		*data = pattern
		return status.OK
	}
	if *data != pattern {
		return status.VerifyMismatch
	}
	return status.OK
}

// DiagnoseSendBlock stands in for the device on a write: it only takes the
// bytes from the host and runs the CRC.
func DiagnoseSendBlock(blk *dtvtrans.Block, host dtvtrans.Host) status.Code {
	crc := blk.CRC16
	var i uint16
	st := status.OK
	for ; i < blk.Length; i++ {
		var data byte
		if st = host.TransferByte(&data); st != status.OK {
			break
		}
		crc = crc16.Update(crc, data)
	}
	blk.Transferred = i
	blk.CRC16 = crc
	return st
}

// DiagnoseRecvBlock stands in for the device on a read: it hands the
// pattern to the host.
func DiagnoseRecvBlock(params *param.Set) BlockFunc {
	return func(blk *dtvtrans.Block, host dtvtrans.Host) status.Code {
		crc := blk.CRC16
		var i uint16
		st := status.OK
		for ; i < blk.Length; i++ {
			data := params.Byte(param.DiagnosePattern)
			if st = host.TransferByte(&data); st != status.OK {
				break
			}
			crc = crc16.Update(crc, data)
		}
		blk.Transferred = i
		blk.CRC16 = crc
		return st
	}
}

// Ends are the two sides chosen for one transfer.
type Ends struct {
	Host  Host
	Block BlockFunc
}

// ForRead picks the ends for a device to host transfer.
func ForRead(mode Mode, serial Host, trans *dtvtrans.Trans, params *param.Set) Ends {
	e := Ends{Host: serial, Block: trans.RecvBlock}
	if mode == DtvOnly {
		e.Host = &DiagnoseHost{Params: params}
	}
	if mode == SerialOnly {
		e.Block = DiagnoseRecvBlock(params)
	}
	return e
}

// ForWrite picks the ends for a host to device transfer.
func ForWrite(mode Mode, serial Host, trans *dtvtrans.Trans, params *param.Set) Ends {
	e := Ends{Host: serial, Block: trans.SendBlock}
	if mode == DtvOnly {
		e.Host = &DiagnoseHost{Params: params, Reading: true}
	}
	if mode == SerialOnly {
		e.Block = DiagnoseSendBlock
	}
	return e
}
