package uart

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/strickyak/dtv2ser/param"
)

func fastParams() *param.Set {
	p := param.New()
	p.SetWord(param.SerialReadAvailTimeout, 500) // 50ms
	p.SetWord(param.SerialSendReadyTimeout, 500)
	return p
}

func TestHex(t *testing.T) {
	if got := string(HexByte(0xa5)); got != "A5" {
		t.Errorf("HexByte = %q", got)
	}
	if got := string(HexWord(0x0005)); got != "0005" {
		t.Errorf("HexWord = %q", got)
	}
	for _, tc := range []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"00", 0, true},
		{"fF", 0xff, true},
		{"01aB03", 0x01ab03, true},
		{"0g", 0, false},
		{" 1", 0, false},
	} {
		got, ok := ParseHex([]byte(tc.in))
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseHex(%q) = %x,%v want %x,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestReceptionGate(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	link := NewLink(dev, fastParams())
	defer link.Close()

	// Stopped: the byte is held back.
	go host.Write([]byte{0x42})
	if b, ok := link.Read(); ok {
		t.Fatalf("read %02x while reception stopped", b)
	}

	link.StartReception()
	b, ok := link.Read()
	if !ok || b != 0x42 {
		t.Fatalf("after start: %02x %v, want 42 true", b, ok)
	}
	if link.Available() {
		t.Errorf("unexpected data available")
	}
}

func TestStartClearsBuffer(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	link := NewLink(dev, fastParams())
	defer link.Close()

	link.StartReception()
	host.Write([]byte{1, 2, 3})
	deadline := time.Now().Add(time.Second)
	for !link.Available() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !link.Available() {
		t.Fatalf("nothing received")
	}
	link.StopReception()
	link.StartReception()
	if b, ok := link.ReadTimeout(20 * time.Millisecond); ok {
		t.Errorf("byte %02x survived a restart", b)
	}
}

func TestSendReply(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	link := NewLink(dev, fastParams())
	defer link.Close()

	go func() {
		SendHexByteCRLF(link, 0x0b)
		SendHexWordCRLF(link, 0xBEEF)
	}()
	got := make([]byte, 10)
	if _, err := io.ReadFull(host, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("0B\r\nBEEF\r\n")) {
		t.Errorf("got %q", got)
	}
}

func TestReadAfterClose(t *testing.T) {
	host, dev := net.Pipe()
	link := NewLink(dev, param.New())
	host.Close()
	link.StartReception()

	start := time.Now()
	if _, ok := link.Read(); ok {
		t.Errorf("read from a closed link")
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Errorf("read on a closed link waited for the full timeout")
	}
}

func TestWriteWaitsForPeer(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	link := NewLink(dev, fastParams())
	defer link.Close()

	done := make(chan error, 1)
	go func() {
		_, err := link.Write([]byte("block"))
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("write returned before the peer read: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	got := make([]byte, 5)
	if _, err := io.ReadFull(host, got); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("write: %v", err)
		}
	case <-time.After(time.Second):
		t.Errorf("write still blocked after the peer read")
	}
	if string(got) != "block" {
		t.Errorf("got %q", got)
	}
}

func TestWriteOnClosedLink(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	link := NewLink(dev, fastParams())

	done := make(chan error, 1)
	go func() {
		_, err := link.Write([]byte{1, 2})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	link.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Errorf("write on a closed link succeeded")
		}
	case <-time.After(time.Second):
		t.Errorf("write hangs after close")
	}
}
