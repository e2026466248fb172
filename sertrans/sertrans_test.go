package sertrans

import (
	"bytes"
	"testing"

	"github.com/strickyak/dtv2ser/crc16"
	"github.com/strickyak/dtv2ser/status"
)

// fakePort plays the host from a script.
type fakePort struct {
	in        []byte
	out       bytes.Buffer
	receiving bool
	sendFails bool
}

func (p *fakePort) Read() (byte, bool) {
	if !p.receiving || len(p.in) == 0 {
		return 0, false
	}
	b := p.in[0]
	p.in = p.in[1:]
	return b, true
}

func (p *fakePort) Send(b byte) bool {
	if p.sendFails {
		return false
	}
	p.out.WriteByte(b)
	return true
}

func (p *fakePort) Available() bool { return p.receiving && len(p.in) > 0 }
func (p *fakePort) StartReception() { p.receiving = true }
func (p *fakePort) StopReception()  { p.receiving = false }

func TestReadBlock(t *testing.T) {
	data := []byte{1, 2, 3}
	crc := crc16.Checksum(data)
	port := &fakePort{in: append(append([]byte{}, data...), byte(crc>>8), byte(crc))}
	h := &Read{Port: port}

	if st := h.Begin(3); st != status.OK || !port.receiving {
		t.Fatalf("Begin: %v", st)
	}
	var got []byte
	for range data {
		var b byte
		if st := h.TransferByte(&b); st != status.OK {
			t.Fatal(st)
		}
		got = append(got, b)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got % x", got)
	}
	if st := h.CheckBlock(crc); st != status.OK {
		t.Errorf("CheckBlock: %v", st)
	}
	if st := h.End(status.OK); st != status.OK || port.receiving {
		t.Errorf("End: %v", st)
	}
	if !bytes.Equal(port.out.Bytes(), []byte{0, 0}) {
		t.Errorf("host saw % x", port.out.Bytes())
	}
}

func TestReadFailures(t *testing.T) {
	port := &fakePort{in: []byte{0x12, 0x34}}
	h := &Read{Port: port}
	h.Begin(0)
	if st := h.CheckBlock(0x1235); st != status.CRC16Mismatch {
		t.Errorf("CheckBlock: %v", st)
	}
	var b byte
	if st := h.TransferByte(&b); st != status.ClientTimeout {
		t.Errorf("TransferByte on empty: %v", st)
	}
	if st := h.End(status.NoAck2); st != status.NoAck2 {
		t.Errorf("End: %v", st)
	}
	if last := port.out.Bytes()[port.out.Len()-1]; last != byte(status.NoAck2) {
		t.Errorf("final byte %02x", last)
	}

	port = &fakePort{sendFails: true}
	h = &Read{Port: port}
	if st := h.Begin(0); st != status.ClientTimeout {
		t.Errorf("Begin with a stuck host: %v", st)
	}
	if st := h.End(status.OK); st != status.ClientTimeout {
		t.Errorf("End with a stuck host: %v", st)
	}
}

func TestWriteBlock(t *testing.T) {
	port := &fakePort{in: []byte{0}}
	h := &Write{Port: port}
	if st := h.Begin(2); st != status.OK {
		t.Fatal(st)
	}
	for _, b := range []byte{0xaa, 0x55} {
		b := b
		if st := h.TransferByte(&b); st != status.OK {
			t.Fatal(st)
		}
	}
	if st := h.CheckBlock(0xbeef); st != status.OK {
		t.Fatal(st)
	}
	if !bytes.Equal(port.out.Bytes(), []byte{0xaa, 0x55, 0xbe, 0xef}) {
		t.Errorf("host saw % x", port.out.Bytes())
	}

	port.in = []byte{0}
	if st := h.End(status.OK); st != status.OK {
		t.Errorf("End: %v", st)
	}
}

func TestWriteAbortAndEnd(t *testing.T) {
	port := &fakePort{in: []byte{7}}
	h := &Write{Port: port}
	if st := h.Begin(1); st != status.ClientTimeout {
		t.Errorf("Begin with a bad start byte: %v", st)
	}

	port = &fakePort{in: []byte{0}}
	h = &Write{Port: port}
	h.Begin(1)
	port.in = []byte{1}
	if st := h.CheckBlock(0); st != status.ClientAbort {
		t.Errorf("CheckBlock with a pending byte: %v", st)
	}
	// The host's final byte wins over the last status.
	if st := h.End(status.ClientAbort); st != status.Code(1) {
		t.Errorf("End: %v", st)
	}

	port = &fakePort{in: []byte{0}}
	h = &Write{Port: port}
	h.Begin(1)
	if st := h.End(status.OK); st != status.ClientTimeout {
		t.Errorf("End without a final byte: %v", st)
	}
}
