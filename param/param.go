// Package param holds the tunable timing parameters of the bridge.
//
// There are NumBytes byte parameters and NumWords word parameters.  They are
// loaded once at startup from a Store, guarded by a CRC16, and fall back to
// the compiled in Defaults when the store is not ready or the CRC mismatches.
package param

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/strickyak/dtv2ser/crc16"
)

// byte parameters
const (
	RecvDelay           = 0 // dtvlow settle loops before sampling data
	ErrorConditionLoops = 1 // count
	DiagnosePattern     = 2 // pattern byte
	IsAliveRepeat       = 3 // count
	IsAliveDelay        = 4 // 100us

	NumBytes = 5
)

// word parameters
const (
	WaitForAckDelay        = 0 // 100us
	PrepareResetDelay      = 1 // 100us
	ResetDelay             = 2 // 10ms
	ErrorConditionDelay    = 3 // 10ms
	SerialRTSTimeout       = 4 // 100us
	SerialReadAvailTimeout = 5 // 100us
	SerialSendReadyTimeout = 6 // 100us
	TransferBlockSize      = 7 // bytes
	IsAliveIdle            = 8 // 100us

	NumWords = 9
)

type Set struct {
	Bytes [NumBytes]byte
	Words [NumWords]uint16
}

var Defaults = Set{
	Bytes: [NumBytes]byte{
		2,  // RecvDelay
		5,  // ErrorConditionLoops
		0,  // DiagnosePattern
		3,  // IsAliveRepeat
		20, // IsAliveDelay = 2ms
	},
	Words: [NumWords]uint16{
		0xfff, // WaitForAckDelay
		100,   // PrepareResetDelay = 10ms
		100,   // ResetDelay = 1s
		50,    // ErrorConditionDelay = 500ms
		5000,  // SerialRTSTimeout = 500ms
		5000,  // SerialReadAvailTimeout
		5000,  // SerialSendReadyTimeout
		0x400, // TransferBlockSize
		200,   // IsAliveIdle = 20ms
	},
}

// Info describes one parameter for listings.
type Info struct {
	Name string
	Unit string
}

var ByteInfo = [NumBytes]Info{
	{"dtvlow_recv_delay", "settle loops"},
	{"error_condition_loops", "count"},
	{"diagnose_pattern", "byte"},
	{"is_alive_repeat", "count"},
	{"is_alive_delay", "100us"},
}

var WordInfo = [NumWords]Info{
	{"dtvlow_wait_for_ack_delay", "100us"},
	{"dtvlow_prepare_reset_delay", "100us"},
	{"dtvlow_reset_delay", "10ms"},
	{"error_condition_delay", "10ms"},
	{"serial_rts_timeout", "100us"},
	{"serial_read_avail_timeout", "100us"},
	{"serial_send_ready_timeout", "100us"},
	{"dtv_transfer_block_size", "bytes"},
	{"is_alive_idle", "100us"},
}

// Result of load and save, sent to the host as a hex byte.
type Result byte

const (
	OK          Result = 0
	NotReady    Result = 1
	CRCMismatch Result = 2
)

var ResultNames = map[Result]string{
	OK:          "ok",
	NotReady:    "not ready",
	CRCMismatch: "crc mismatch",
}

func (r Result) String() string {
	if s, ok := ResultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("param result $%02x", byte(r))
}

// ErrNotReady is returned by a Store that cannot be accessed right now.
var ErrNotReady = errors.New("parameter store not ready")

// Store keeps the persisted parameter image.
type Store interface {
	Load() ([]byte, error)
	Save(image []byte) error
}

// New returns a Set holding the defaults.
func New() *Set {
	p := Defaults
	return &p
}

func (p *Set) Byte(i int) byte         { return p.Bytes[i] }
func (p *Set) Word(i int) uint16       { return p.Words[i] }
func (p *Set) SetByte(i int, v byte)   { p.Bytes[i] = v }
func (p *Set) SetWord(i int, v uint16) { p.Words[i] = v }

func (p *Set) Reset() {
	*p = Defaults
}

// Size of the encoded parameter block, without the CRC.
const Size = NumBytes + 2*NumWords

// Encode packs the set little endian and appends its CRC16.
func (p *Set) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(p.Bytes[:])
	for _, w := range p.Words {
		binary.Write(&buf, binary.LittleEndian, w)
	}
	crc := crc16.Checksum(buf.Bytes())
	binary.Write(&buf, binary.LittleEndian, crc)
	return buf.Bytes()
}

// Decode fills p from an image if its CRC is valid.  p is untouched otherwise.
func (p *Set) Decode(image []byte) Result {
	if len(image) != Size+2 {
		return CRCMismatch
	}
	want := binary.LittleEndian.Uint16(image[Size:])
	if crc16.Checksum(image[:Size]) != want {
		return CRCMismatch
	}
	var q Set
	copy(q.Bytes[:], image[:NumBytes])
	for i := range q.Words {
		q.Words[i] = binary.LittleEndian.Uint16(image[NumBytes+2*i:])
	}
	*p = q
	return OK
}

func (p *Set) Load(st Store) Result {
	image, err := st.Load()
	if err != nil {
		return NotReady
	}
	return p.Decode(image)
}

func (p *Set) Save(st Store) Result {
	if err := st.Save(p.Encode()); err != nil {
		return NotReady
	}
	return OK
}

// Init loads from the store or falls back to the defaults.
func (p *Set) Init(st Store) Result {
	r := p.Load(st)
	if r != OK {
		p.Reset()
	}
	return r
}
