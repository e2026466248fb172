package dtvtrans

import (
	"bytes"
	"testing"

	"github.com/strickyak/dtv2ser/crc16"
	"github.com/strickyak/dtv2ser/dtvlow"
	"github.com/strickyak/dtv2ser/hal/sim"
	"github.com/strickyak/dtv2ser/param"
	"github.com/strickyak/dtv2ser/status"
)

func newTrans() (*Trans, *sim.Device) {
	clock := sim.NewClock()
	dev := sim.NewDevice(clock)
	p := param.New()
	p.SetWord(param.WaitForAckDelay, 20)
	return New(dtvlow.New(dev, clock, p)), dev
}

// source hands out data until failAt, then fails with ClientTimeout.
type source struct {
	data   []byte
	pos    int
	failAt int
}

func (s *source) TransferByte(b *byte) status.Code {
	if s.failAt > 0 && s.pos == s.failAt {
		return status.ClientTimeout
	}
	*b = s.data[s.pos]
	s.pos++
	return status.OK
}

type sink struct {
	bytes.Buffer
}

func (s *sink) TransferByte(b *byte) status.Code {
	s.WriteByte(*b)
	return status.OK
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*13 + 7)
	}
	return data
}

func TestWriteThenRead(t *testing.T) {
	tr, dev := newTrans()
	data := pattern(0x80)

	blk := &Block{Bank: 2, Offset: 0x100, Length: 0x80, CRC16: crc16.Init}
	if st := tr.SendBlock(blk, &source{data: data}); st != status.OK {
		t.Fatalf("SendBlock: %v", st)
	}
	if blk.Transferred != 0x80 || blk.CRC16 != crc16.Checksum(data) {
		t.Errorf("send block %+v", blk)
	}
	if got := dev.Peek(2*0x4000+0x100, 0x80); !bytes.Equal(got, data) {
		t.Errorf("device memory differs")
	}

	var out sink
	blk = &Block{Bank: 2, Offset: 0x100, Length: 0x80, CRC16: crc16.Init}
	if st := tr.RecvBlock(blk, &out); st != status.OK {
		t.Fatalf("RecvBlock: %v", st)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Errorf("read back % x", out.Bytes()[:8])
	}
	if blk.CRC16 != crc16.Checksum(data) {
		t.Errorf("recv crc %04x", blk.CRC16)
	}
}

func TestRunningCRCAcrossBlocks(t *testing.T) {
	tr, _ := newTrans()
	data := pattern(0x60)
	src := &source{data: data}

	crc := uint16(crc16.Init)
	for off := uint16(0); off < 0x60; off += 0x20 {
		blk := &Block{Offset: off, Length: 0x20, CRC16: crc}
		if st := tr.SendBlock(blk, src); st != status.OK {
			t.Fatalf("block at %x: %v", off, st)
		}
		crc = blk.CRC16
	}
	if crc != crc16.Checksum(data) {
		t.Errorf("running crc %04x, want %04x", crc, crc16.Checksum(data))
	}
}

func TestHostFailureFeedsZeros(t *testing.T) {
	tr, dev := newTrans()
	dev.Poke(0, bytes.Repeat([]byte{0xee}, 0x10))

	blk := &Block{Length: 0x10, CRC16: crc16.Init}
	st := tr.SendBlock(blk, &source{data: pattern(0x10), failAt: 4})
	if st != status.ClientTimeout {
		t.Fatalf("got %v, want host error", st)
	}
	if blk.Transferred != 0x10 {
		t.Errorf("framing cut short: %d bytes", blk.Transferred)
	}
	got := dev.Peek(0, 0x10)
	if !bytes.Equal(got[4:], make([]byte, 12)) {
		t.Errorf("tail after host failure % x", got[4:])
	}
}

func TestChecksumMismatch(t *testing.T) {
	tr, dev := newTrans()
	dev.Corrupt = 7 + 3 // third data byte after the seven header bytes

	blk := &Block{Length: 8, CRC16: crc16.Init}
	if st := tr.SendBlock(blk, &source{data: pattern(8)}); st != status.Checksum {
		t.Errorf("send: got %v, want Checksum", st)
	}

	tr, dev = newTrans()
	dev.Corrupt = 7 + 2
	var out sink
	if st := tr.RecvBlock(&Block{Length: 8, CRC16: crc16.Init}, &out); st != status.Checksum {
		t.Errorf("recv: got %v, want Checksum", st)
	}
}

func TestNoAckKeepsFirstError(t *testing.T) {
	tr, dev := newTrans()
	dev.NoAckPhase = 2
	dev.NoAckAfter = 10

	src := &source{data: pattern(0x20)}
	blk := &Block{Length: 0x20, CRC16: crc16.Init}
	if st := tr.SendBlock(blk, src); st != status.NoAck2 {
		t.Fatalf("got %v, want NoAck2", st)
	}
	if blk.Transferred != 3 {
		t.Errorf("transferred %d, want 3", blk.Transferred)
	}
	if src.pos >= 0x20 {
		t.Errorf("host source drained")
	}
}

func TestExecMem(t *testing.T) {
	tr, dev := newTrans()
	if st := tr.ExecMem(0x080d); st != status.OK {
		t.Fatal(st)
	}
	if ex := dev.Execs(); len(ex) != 1 || ex[0] != 0x080d {
		t.Errorf("execs %x", ex)
	}
}

func TestCommand(t *testing.T) {
	tr, dev := newTrans()
	dev.SysRegs = [4]byte{0x30, 0x41, 0x02, 0xff}

	var w bytes.Buffer
	if st := tr.Command(0x05, []byte{0}, 4, &w); st != status.OK {
		t.Fatal(st)
	}
	if w.String() != "304102FF\r\n" {
		t.Errorf("sys_result output %q", w.String())
	}

	w.Reset()
	if st := tr.Command(0x81, nil, VarArg, &w); st != status.OK {
		t.Fatal(st)
	}
	want := "0B\r\n" + "647476327365722073696D" + "\r\n"
	if w.String() != want {
		t.Errorf("implementation output %q, want %q", w.String(), want)
	}

	w.Reset()
	if st := tr.Command(0x04, []byte{0, 0x00, 0xc0, 0, 1, 2, 3, 7}, 0, &w); st != status.OK {
		t.Fatal(st)
	}
	if w.Len() != 0 {
		t.Errorf("unexpected output %q", w.String())
	}
	if sc := dev.SysCalls(); len(sc) != 1 || sc[0].Addr != 0xc000 || sc[0].YR != 3 {
		t.Errorf("sys calls %+v", sc)
	}
}

func TestSendBoot(t *testing.T) {
	tr, dev := newTrans()
	dev.BootMode = true
	data := pattern(5)

	toggles := 0
	st, chk := tr.SendBoot(0x1000, 5, &source{data: data}, func() { toggles++ })
	if st != status.OK {
		t.Fatal(st)
	}
	var want byte
	for _, b := range data {
		want = crc16.Sum(want, b)
	}
	if chk != want || toggles != 5 {
		t.Errorf("chk %02x want %02x, toggles %d", chk, want, toggles)
	}
	boots := dev.Boots()
	if len(boots) != 1 || !boots[0].Good || boots[0].End != 0x1004 {
		t.Errorf("boots %+v", boots)
	}
}
