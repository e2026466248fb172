package dtvlow

import (
	"testing"
	"time"

	"github.com/strickyak/dtv2ser/hal"
	"github.com/strickyak/dtv2ser/hal/sim"
	"github.com/strickyak/dtv2ser/param"
	"github.com/strickyak/dtv2ser/status"
)

func newLow() (*Low, *sim.Device, *sim.Clock) {
	clock := sim.NewClock()
	dev := sim.NewDevice(clock)
	p := param.New()
	p.SetWord(param.WaitForAckDelay, 20)
	return New(dev, clock, p), dev, clock
}

// Every byte sent lands in device memory and reads back unchanged.
func TestRoundTripAllBytes(t *testing.T) {
	low, dev, _ := newLow()

	low.StateSend()
	for _, b := range []byte{0x02, 0, 0, 0, 0, 0, 1} { // write 256 bytes at 0
		if st := low.SendByte(b); st != status.OK {
			t.Fatalf("header %02x: %v", b, st)
		}
	}
	for i := 0; i < 256; i++ {
		if st := low.SendByte(byte(i)); st != status.OK {
			t.Fatalf("send %02x: %v", i, st)
		}
	}
	low.SendByte(0)
	low.StateOff()

	got := dev.Peek(0, 256)
	for i, b := range got {
		if b != byte(i) {
			t.Fatalf("device memory[%d] = %02x", i, b)
		}
	}

	low.StateSend()
	for _, b := range []byte{0x01, 0, 0, 0, 0, 0, 1} {
		low.SendByte(b)
	}
	low.StateRecv()
	for i := 0; i < 256; i++ {
		b, st := low.RecvByte()
		if st != status.OK || b != byte(i) {
			t.Fatalf("recv %d: %02x %v", i, b, st)
		}
	}
	low.StateOff()
}

func TestNoAckPhase(t *testing.T) {
	for phase := 1; phase <= 4; phase++ {
		low, dev, clock := newLow()
		dev.NoAckPhase = phase

		low.StateSend()
		start := clock.Now()
		st := low.SendByte(0x5a)
		low.StateOff()

		if st != status.NoAck(phase) {
			t.Errorf("phase %d: got %v", phase, st)
		}
		if waited := clock.Now() - start; waited < 2*time.Millisecond {
			t.Errorf("phase %d: gave up after %v, want the 2ms budget", phase, waited)
		}
	}
}

func TestNoAckOnRecv(t *testing.T) {
	low, dev, _ := newLow()
	dev.NoAckPhase = 3

	low.StateRecv()
	if _, st := low.RecvByte(); st != status.NoAck3 {
		t.Errorf("got %v, want NoAck3", st)
	}
	low.StateOff()
}

func TestBootByteOrder(t *testing.T) {
	low, dev, _ := newLow()
	dev.BootMode = true

	low.StateSend()
	// start $0801, end $0802, two bytes, check sum
	for _, b := range []byte{0x08, 0x01, 0x08, 0x02, 0xa9, 0x3c, 0xaa + 0x3d} {
		if st := low.SendByteBoot(b); st != status.OK {
			t.Fatalf("boot byte %02x: %v", b, st)
		}
	}
	low.StateOff()

	boots := dev.Boots()
	if len(boots) != 1 {
		t.Fatalf("got %d boot images", len(boots))
	}
	img := boots[0]
	if img.Start != 0x0801 || img.End != 0x0802 || !img.Good {
		t.Errorf("boot image %+v", img)
	}
	if got := dev.Peek(0x0801, 2); got[0] != 0xa9 || got[1] != 0x3c {
		t.Errorf("boot data % x", got)
	}
}

func TestIsAlive(t *testing.T) {
	low, _, _ := newLow()
	low.StateSend()
	if st := low.IsAlive(50); st != status.OK {
		t.Errorf("alive device: %v", st)
	}
	low.StateOff()

	low, dev, clock := newLow()
	dev.Dead = true
	low.StateSend()
	start := clock.Now()
	if st := low.IsAlive(50); st != status.NotAlive {
		t.Errorf("dead device: %v", st)
	}
	if waited := clock.Now() - start; waited < 500*time.Millisecond {
		t.Errorf("gave up after %v, want the 500ms budget", waited)
	}
	low.StateOff()
}

func TestResetKnock(t *testing.T) {
	low, dev, clock := newLow()
	low.StateOff()

	start := clock.Now()
	low.ResetDevice(ResetNormal)
	low.ResetDevice(ResetDtvtrans)
	low.ResetDevice(ResetNoDtvmon)

	want := []byte{0, 1, 2}
	resets := dev.Resets()
	if len(resets) != len(want) {
		t.Fatalf("got %d resets", len(resets))
	}
	for i, r := range resets {
		if r.Mode != want[i] {
			t.Errorf("reset %d: mode %d, want %d", i, r.Mode, want[i])
		}
	}
	// 2 x 10ms prepare plus 1s hold, three times
	if took := clock.Now() - start; took < 3*1020*time.Millisecond {
		t.Errorf("reset sequence took %v", took)
	}
	if !dev.Ack() || dev.Data() != 7 {
		t.Errorf("lines not idle after reset")
	}
}

func TestJoyOut(t *testing.T) {
	low, dev, _ := newLow()
	low.StateJoy()
	hal.JoyOut(dev, hal.JoyUp|hal.JoyFire)
	hal.JoyOut(dev, hal.JoyRight)
	low.StateOff()

	log := dev.JoyLog()
	want := []byte{0, hal.JoyUp | hal.JoyFire, hal.JoyRight}
	if string(log) != string(want) {
		t.Errorf("joy log % x, want % x", log, want)
	}
}
