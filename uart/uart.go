// Package uart is the byte link between the bridge and its host.
//
// A Link wraps any io.ReadWriter (a serial port, a pipe in tests).  One
// goroutine pumps bytes from the reader into a bounded receive buffer and
// another drains a channel of outgoing chunks into the writer.  Reception can
// be stopped and started, like toggling CTS: while stopped, the pump holds
// what it read instead of delivering it, and starting reception again clears
// the buffer.
package uart

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/strickyak/dtv2ser/hal"
	"github.com/strickyak/dtv2ser/param"
)

// Port is what the protocol layers need from the host link.
type Port interface {
	// Read waits for one byte up to the read timeout.
	Read() (byte, bool)
	// Send queues one byte, giving up after the send timeout.
	Send(b byte) bool
	// Available reports whether Read would succeed immediately.
	Available() bool
	StartReception()
	StopReception()
}

const (
	BufferSize = 1024
	chunkSize  = 64
)

type Link struct {
	Params *param.Set
	Logf   func(format string, args ...any)

	mu        sync.Mutex
	cond      *sync.Cond
	buf       []byte
	receiving bool
	closed    bool
	err       error

	notify chan struct{}
	toHost chan chunk
	done   chan struct{}
}

// chunk is queued output.  written, if set, is closed once the writer took it.
type chunk struct {
	bb      []byte
	written chan struct{}
}

// NewLink starts the pump and the sender for rw.  Reception starts stopped.
func NewLink(rw io.ReadWriter, params *param.Set) *Link {
	o := &Link{
		Params: params,
		Logf:   log.Printf,
		notify: make(chan struct{}, 1),
		toHost: make(chan chunk, BufferSize),
		done:   make(chan struct{}),
	}
	o.cond = sync.NewCond(&o.mu)
	go o.pump(rw)
	go o.toHostRoutine(rw)
	return o
}

func (o *Link) wake() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *Link) pump(r io.Reader) {
	rx := make([]byte, chunkSize)
	for {
		n, err := r.Read(rx)
		for _, b := range rx[:n] {
			o.mu.Lock()
			for !o.closed && (!o.receiving || len(o.buf) >= BufferSize) {
				o.cond.Wait()
			}
			if o.closed {
				o.mu.Unlock()
				return
			}
			o.buf = append(o.buf, b)
			o.mu.Unlock()
			o.wake()
		}
		if err != nil {
			o.mu.Lock()
			wasClosed := o.closed
			if !o.closed {
				o.err = err
				o.closed = true
			}
			o.cond.Broadcast()
			o.mu.Unlock()
			o.wake()
			if err != io.EOF && !wasClosed {
				o.Logf("uart: pump: %v", err)
			}
			return
		}
	}
}

func (o *Link) toHostRoutine(w io.Writer) {
	for {
		select {
		case c := <-o.toHost:
			if _, err := w.Write(c.bb); err != nil {
				o.Logf("uart: to host: %v", err)
				o.Close()
				return
			}
			if c.written != nil {
				close(c.written)
			}
		case <-o.done:
			return
		}
	}
}

// Err is the error that ended the pump, if any.
func (o *Link) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Closed reports whether the link is gone.  Buffered bytes may remain.
func (o *Link) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close stops both goroutines.  The underlying ReadWriter stays open.
func (o *Link) Close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
	}
	select {
	case <-o.done:
	default:
		close(o.done)
	}
	o.cond.Broadcast()
	o.mu.Unlock()
	o.wake()
}

func (o *Link) StartReception() {
	o.mu.Lock()
	o.buf = o.buf[:0]
	o.receiving = true
	o.cond.Broadcast()
	o.mu.Unlock()
}

func (o *Link) StopReception() {
	o.mu.Lock()
	o.receiving = false
	o.mu.Unlock()
}

func (o *Link) Available() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buf) > 0
}

func (o *Link) tryRead() (b byte, ok bool, dead bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.buf) > 0 {
		b = o.buf[0]
		o.buf = o.buf[1:]
		o.cond.Broadcast()
		return b, true, false
	}
	return 0, false, o.closed
}

func (o *Link) Read() (byte, bool) {
	return o.ReadTimeout(hal.Ticks100us(o.Params.Word(param.SerialReadAvailTimeout)))
}

// ReadTimeout is Read with an explicit budget.
func (o *Link) ReadTimeout(d time.Duration) (byte, bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		b, ok, dead := o.tryRead()
		if ok {
			return b, true
		}
		if dead {
			return 0, false
		}
		select {
		case <-o.notify:
		case <-timer.C:
			b, ok, _ := o.tryRead()
			return b, ok
		}
	}
}

func (o *Link) Send(b byte) bool {
	return o.send(chunk{bb: []byte{b}})
}

func (o *Link) send(c chunk) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	timer := time.NewTimer(hal.Ticks100us(o.Params.Word(param.SerialSendReadyTimeout)))
	defer timer.Stop()
	select {
	case o.toHost <- c:
		return true
	case <-o.done:
		return false
	case <-timer.C:
		return false
	}
}

// Write makes a Link usable as an io.Writer.  Unlike Send it returns only
// once the underlying writer took the bytes, so a writer pacing its output
// sees the other side keep up.
func (o *Link) Write(bb []byte) (int, error) {
	c := chunk{bb: append([]byte(nil), bb...), written: make(chan struct{})}
	if !o.send(c) {
		return 0, io.ErrShortWrite
	}
	select {
	case <-c.written:
		return len(bb), nil
	case <-o.done:
		return 0, io.ErrClosedPipe
	}
}
