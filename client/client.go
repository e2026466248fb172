// Package client drives the bridge from the host side of the serial link.
package client

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/strickyak/dtv2ser/cmdline"
	"github.com/strickyak/dtv2ser/crc16"
	"github.com/strickyak/dtv2ser/dtvtrans"
	"github.com/strickyak/dtv2ser/param"
	"github.com/strickyak/dtv2ser/status"
	"github.com/strickyak/dtv2ser/transfer"
	"github.com/strickyak/dtv2ser/uart"
)

const maxLine = 80

// CommandError is a nonzero line status from the bridge.
type CommandError struct {
	Line   string
	Status cmdline.Status
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q: %v", e.Line, e.Status)
}

type Client struct {
	Link *uart.Link

	// Timeout bounds every wait for a reply byte.
	Timeout time.Duration
	// BlockSize is pushed to the bridge before memory transfers.
	BlockSize uint16
	// ResultRetries is how often `t` is tried after a transfer.
	ResultRetries int
	// ByteTime is how long the device may take per byte that is still
	// buffered in the bridge when the host has sent everything.
	ByteTime time.Duration

	Logf func(format string, args ...any)

	// LastTime is the bridge's time for the last transfer, in 10ms ticks.
	LastTime uint16

	port io.Closer
}

func New(rw io.ReadWriter) *Client {
	params := param.New()
	params.SetWord(param.SerialSendReadyTimeout, 0xffff)
	link := uart.NewLink(rw, params)
	link.StartReception()
	return &Client{
		Link:          link,
		Timeout:       2 * time.Second,
		BlockSize:     0x400,
		ResultRetries: 10,
		ByteTime:      10 * time.Millisecond,
		Logf:          log.Printf,
	}
}

func (c *Client) Close() {
	c.Link.Close()
	if c.port != nil {
		c.port.Close()
	}
}

func (c *Client) readByte() (byte, error) {
	return c.readByteWithin(c.Timeout)
}

func (c *Client) readByteWithin(d time.Duration) (byte, error) {
	b, ok := c.Link.ReadTimeout(d)
	if !ok {
		if err := c.Link.Err(); err != nil {
			return 0, errors.Wrap(err, "reading reply")
		}
		return 0, errors.New("timeout reading reply")
	}
	return b, nil
}

func (c *Client) readFull(n int) ([]byte, error) {
	bb := make([]byte, n)
	for i := range bb {
		b, err := c.readByte()
		if err != nil {
			return bb[:i], errors.Wrapf(err, "byte %d of %d", i, n)
		}
		bb[i] = b
	}
	return bb, nil
}

// readLine returns one reply line without its CR LF.
func (c *Client) readLine() ([]byte, error) {
	var line []byte
	for len(line) < maxLine {
		b, err := c.readByte()
		if err != nil {
			return line, err
		}
		switch b {
		case '\r':
		case '\n':
			return line, nil
		default:
			line = append(line, b)
		}
	}
	return line, errors.Errorf("reply line too long: %q", line)
}

func (c *Client) readHex(digits int) (uint32, error) {
	line, err := c.readLine()
	if err != nil {
		return 0, err
	}
	if len(line) != digits {
		return 0, errors.Errorf("want %d hex digits, got %q", digits, line)
	}
	v, ok := uart.ParseHex(line)
	if !ok {
		return 0, errors.Errorf("not hex: %q", line)
	}
	return v, nil
}

func (c *Client) readHexByte() (byte, error) {
	v, err := c.readHex(2)
	return byte(v), err
}

func (c *Client) readHexWord() (uint16, error) {
	v, err := c.readHex(4)
	return uint16(v), err
}

func (c *Client) write(bb []byte) error {
	if _, err := c.Link.Write(bb); err != nil {
		return errors.Wrap(err, "writing to bridge")
	}
	return nil
}

// Do sends one command line and reads its line status.  Stale input is
// thrown away first.
func (c *Client) Do(format string, args ...any) error {
	line := fmt.Sprintf(format, args...)
	c.Link.StartReception()
	if err := c.write([]byte(line + "\n")); err != nil {
		return err
	}
	st, err := c.readHexByte()
	if err != nil {
		return errors.Wrapf(err, "command %q", line)
	}
	if st != byte(cmdline.OK) {
		return &CommandError{Line: line, Status: cmdline.Status(st)}
	}
	return nil
}

// Exchange sends a raw line and collects whatever comes back until the
// link is quiet.
func (c *Client) Exchange(line string, quiet time.Duration) ([]byte, error) {
	c.Link.StartReception()
	if err := c.write([]byte(line + "\n")); err != nil {
		return nil, err
	}
	var out []byte
	for {
		b, ok := c.Link.ReadTimeout(quiet)
		if !ok {
			return out, c.Link.Err()
		}
		out = append(out, b)
	}
}

// statusReply reads a hex status byte line.
func (c *Client) statusReply() error {
	st, err := c.readHexByte()
	if err != nil {
		return err
	}
	return status.Code(st).Err()
}

// ----- bridge -----

func (c *Client) Version() (major, minor byte, err error) {
	if err = c.Do("v"); err != nil {
		return
	}
	w, err := c.readHexWord()
	return byte(w >> 8), byte(w), err
}

// SetMode sets the transfer mode for following transfers.
func (c *Client) SetMode(mode transfer.Mode) error {
	return c.Do("m%02x", byte(mode))
}

// Result asks for the outcome of the last transfer.
func (c *Client) Result() (status.Code, uint16, error) {
	if err := c.Do("t"); err != nil {
		return 0, 0, err
	}
	st, err := c.readHexByte()
	if err != nil {
		return 0, 0, err
	}
	ticks, err := c.readHexWord()
	return status.Code(st), ticks, err
}

// WaitResult retries Result while the bridge still drains after a failure.
func (c *Client) WaitResult() (status.Code, uint16, error) {
	var err error
	for i := 0; i < c.ResultRetries; i++ {
		var st status.Code
		var ticks uint16
		if st, ticks, err = c.Result(); err == nil {
			return st, ticks, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return 0, 0, errors.Wrap(err, "no transfer result")
}

// ----- device -----

// Alive probes the device for up to timeout 10ms ticks.
func (c *Client) Alive(timeout uint16) error {
	if err := c.Do("a%04x", timeout); err != nil {
		return err
	}
	return c.statusReply()
}

func (c *Client) Reset(mode byte) error {
	if err := c.Do("x%02x", mode); err != nil {
		return err
	}
	return c.statusReply()
}

func (c *Client) Go(addr uint16) error {
	if err := c.Do("g%04x", addr); err != nil {
		return err
	}
	return c.statusReply()
}

// Command runs a device opcode.  With outSize dtvtrans.VarArg the device
// tells the size.
func (c *Client) Command(cmd, outSize byte, in []byte) ([]byte, error) {
	if err := c.Do("c%02x%02x%x", cmd, outSize, in); err != nil {
		return nil, err
	}
	if outSize == 0 {
		return nil, c.statusReply()
	}

	size := int(outSize)
	var line []byte
	if outSize == dtvtrans.VarArg {
		sizeLine, err := c.readLine()
		if err != nil {
			return nil, err
		}
		v, ok := uart.ParseHex(sizeLine)
		if len(sizeLine) != 2 || !ok {
			return nil, errors.Errorf("bad size line %q", sizeLine)
		}
		// A device failing before it told the size leaves only the
		// status line, which looks like a size.
		line, err = c.readLine()
		if err != nil {
			if v != 0 {
				return nil, status.Code(v)
			}
			return nil, err
		}
		size = int(v)
	} else {
		var err error
		if line, err = c.readLine(); err != nil {
			return nil, err
		}
	}

	if len(line) != 2*size {
		// The device failed midway; the status follows the partial output.
		if len(line) >= 2 {
			if v, ok := uart.ParseHex(line[len(line)-2:]); ok && v != 0 {
				return nil, status.Code(v)
			}
		}
		return nil, errors.Errorf("want %d output bytes, got %q", size, line)
	}
	out := make([]byte, size)
	for i := range out {
		v, ok := uart.ParseHex(line[2*i : 2*i+2])
		if !ok {
			return nil, errors.Errorf("not hex: %q", line)
		}
		out[i] = byte(v)
	}
	return out, c.statusReply()
}

// Sys calls a machine language routine on the device with the given
// registers (sr, a, x, y) and CPU port config.
func (c *Client) Sys(mode byte, addr uint16, regs [4]byte, ioConfig byte) error {
	in := []byte{mode, byte(addr), byte(addr >> 8), regs[0], regs[1], regs[2], regs[3], ioConfig}
	_, err := c.Command(0x04, 0, in)
	return err
}

// SysResult fetches the registers after Sys.
func (c *Client) SysResult(mode byte) ([]byte, error) {
	return c.Command(0x05, 4, []byte{mode})
}

func (c *Client) QueryRevision() ([]byte, error) {
	return c.Command(0x80, 2, nil)
}

func (c *Client) QueryImplementation() (string, error) {
	bb, err := c.Command(0x81, dtvtrans.VarArg, nil)
	return string(bb), err
}

// ----- parameters -----

func (c *Client) GetByteParam(i int) (byte, error) {
	if err := c.Do("pbg%02x", i); err != nil {
		return 0, err
	}
	return c.readHexByte()
}

func (c *Client) SetByteParam(i int, v byte) error {
	if err := c.Do("pbs%02x%02x", i, v); err != nil {
		return err
	}
	return c.setReply(i)
}

func (c *Client) GetWordParam(i int) (uint16, error) {
	if err := c.Do("pwg%02x", i); err != nil {
		return 0, err
	}
	return c.readHexWord()
}

func (c *Client) SetWordParam(i int, v uint16) error {
	if err := c.Do("pws%02x%04x", i, v); err != nil {
		return err
	}
	return c.setReply(i)
}

func (c *Client) setReply(i int) error {
	r, err := c.readHexByte()
	if err != nil {
		return err
	}
	if r != 0 {
		return errors.Errorf("no parameter %d", i)
	}
	return nil
}

// ParamStore resets (0), loads (1) or saves (2) the parameters.
func (c *Client) ParamStore(op byte) (param.Result, error) {
	if err := c.Do("pc%02x", op); err != nil {
		return 0, err
	}
	r, err := c.readHexByte()
	return param.Result(r), err
}

func (c *Client) ParamQuery() (numBytes, numWords int, err error) {
	if err = c.Do("pq"); err != nil {
		return
	}
	nb, err := c.readHexByte()
	if err != nil {
		return
	}
	nw, err := c.readHexByte()
	return int(nb), int(nw), err
}

// ParamList reads every parameter, bytes first.
func (c *Client) ParamList() ([]byte, []uint16, error) {
	nb, nw, err := c.ParamQuery()
	if err != nil {
		return nil, nil, err
	}
	bb := make([]byte, nb)
	for i := range bb {
		if bb[i], err = c.GetByteParam(i); err != nil {
			return nil, nil, err
		}
	}
	ww := make([]uint16, nw)
	for i := range ww {
		if ww[i], err = c.GetWordParam(i); err != nil {
			return nil, nil, err
		}
	}
	return bb, ww, nil
}

func (c *Client) ensureBlockSize() error {
	bs, err := c.GetWordParam(param.TransferBlockSize)
	if err != nil {
		return err
	}
	if bs == c.BlockSize {
		return nil
	}
	return c.SetWordParam(param.TransferBlockSize, c.BlockSize)
}

// ----- transfers -----

// finish fetches the bridge's result.  A failure seen on the wire wins
// over it.
func (c *Client) finish(first error) error {
	st, ticks, err := c.WaitResult()
	if first != nil {
		return first
	}
	if err != nil {
		return err
	}
	c.LastTime = ticks
	return st.Err()
}

// drainWait bounds the wait for the bridge's answer after the last of n
// bytes was written: the bridge may still hold a full buffer and a block.
func (c *Client) drainWait(n int) time.Duration {
	if limit := uart.BufferSize + int(c.BlockSize) + 2; n > limit {
		n = limit
	}
	return c.Timeout + time.Duration(n)*c.ByteTime
}

// Write stores data at addr in device memory.
func (c *Client) Write(mode byte, addr uint32, data []byte) error {
	if err := c.ensureBlockSize(); err != nil {
		return err
	}
	if err := c.Do("w%02x%06x%06x", mode, addr, len(data)); err != nil {
		return err
	}
	if b, err := c.readByte(); err != nil || b != 0 {
		return c.finish(errors.Errorf("no start byte (%02x, %v)", b, err))
	}

	base, rest := addr, data
	for len(rest) > 0 {
		plan := transfer.NextBlock(base, uint32(len(rest)), c.BlockSize)
		block := rest[:plan.Length]
		crc := crc16.Checksum(block)
		if err := c.write(append(append([]byte(nil), block...), byte(crc>>8), byte(crc))); err != nil {
			return err
		}
		base += uint32(plan.Length)
		rest = rest[plan.Length:]
		if c.Link.Available() {
			break
		}
	}

	end, err := c.readByteWithin(c.drainWait(len(data)))
	if err != nil {
		return c.finish(err)
	}
	if end != 0 {
		return c.finish(status.Code(end))
	}
	return c.finish(nil)
}

// Read fetches length bytes at addr from device memory.
func (c *Client) Read(mode byte, addr, length uint32) ([]byte, error) {
	if err := c.ensureBlockSize(); err != nil {
		return nil, err
	}
	if err := c.Do("r%02x%06x%06x", mode, addr, length); err != nil {
		return nil, err
	}
	if err := c.write([]byte{0}); err != nil {
		return nil, err
	}

	var data []byte
	var failed error
	base, rest := addr, length
	for rest > 0 {
		plan := transfer.NextBlock(base, rest, c.BlockSize)
		block, err := c.readFull(int(plan.Length) + 2)
		if err != nil {
			failed = err
			break
		}
		n := len(block) - 2
		crc := uint16(block[n])<<8 | uint16(block[n+1])
		if crc16.Checksum(block[:n]) != crc {
			failed = status.CRC16Mismatch
			break
		}
		data = append(data, block[:n]...)
		base += uint32(n)
		rest -= uint32(n)
	}

	final := byte(0)
	if failed != nil {
		final = 1
	}
	if err := c.write([]byte{final}); err != nil {
		return data, err
	}
	return data, c.finish(failed)
}

// DiagnoseDtv moves length bytes between the device and the diagnose
// pattern; nothing crosses the serial link but the command.
func (c *Client) DiagnoseDtv(write bool, mode byte, addr, length uint32) error {
	if err := c.SetMode(transfer.DtvOnly); err != nil {
		return err
	}
	if err := c.ensureBlockSize(); err != nil {
		return err
	}
	op := "r"
	if write {
		op = "w"
	}
	if err := c.Do("%s%02x%06x%06x", op, mode, addr, length); err != nil {
		return err
	}
	return c.finish(nil)
}

// Boot feeds data to the device's boot loader at addr and returns the
// check byte the bridge sent.
func (c *Client) Boot(addr uint16, data []byte) (byte, error) {
	if err := c.Do("b%04x%04x", addr, len(data)); err != nil {
		return 0, err
	}
	if b, err := c.readByte(); err != nil || b != 0 {
		return 0, errors.Errorf("no start byte (%02x, %v)", b, err)
	}

	for rest := data; len(rest) > 0 && !c.Link.Available(); {
		n := len(rest)
		if n > 64 {
			n = 64
		}
		if err := c.write(rest[:n]); err != nil {
			return 0, err
		}
		rest = rest[n:]
	}

	st, err := c.readByteWithin(c.drainWait(len(data)))
	if err != nil {
		return 0, err
	}
	if st != 0 {
		return 0, status.Code(st)
	}
	chk, err := c.readByte()
	if err != nil {
		return 0, err
	}
	var want byte
	for _, b := range data {
		want = crc16.Sum(want, b)
	}
	if chk != want {
		return chk, status.Checksum
	}
	return chk, nil
}

// Joy streams joystick commands; an exit byte is added when missing.
func (c *Client) Joy(script []byte) error {
	if len(script) == 0 || script[len(script)-1] != 0x80 {
		script = append(append([]byte(nil), script...), 0x80)
	}
	if err := c.Do("j"); err != nil {
		return err
	}
	if b, err := c.readByte(); err != nil || b != 0 {
		return errors.Errorf("no start byte (%02x, %v)", b, err)
	}
	if err := c.write(script); err != nil {
		return err
	}
	r, err := c.readByte()
	if err != nil {
		return err
	}
	if r != 0 {
		return errors.Errorf("joystick stream failed (%02x)", r)
	}
	return nil
}

// HexDump formats bytes the way the bridge echoes them.
func HexDump(bb []byte) string {
	var buf bytes.Buffer
	for _, b := range bb {
		buf.Write(uart.HexByte(b))
	}
	return buf.String()
}
