package cmdline

// Event is what one input byte did to the line.
type Event int

const (
	None  Event = iota
	Ready       // a line is complete, see Line
	Error       // backspace on an empty line, or the line is full
)

// Editor collects one command line.
type Editor struct {
	buf  [Size]byte
	pos  int
	line []byte
}

func (e *Editor) Feed(c byte) Event {
	switch {
	case c == '\n' || c == '\r':
		if e.pos == 0 {
			return None
		}
		e.line = append(e.line[:0], e.buf[:e.pos]...)
		e.pos = 0
		return Ready
	case c == 8 || c == 0x7f:
		if e.pos == 0 {
			return Error
		}
		e.pos--
	case c >= ' ':
		if e.pos == Size {
			return Error
		}
		e.buf[e.pos] = c
		e.pos++
	}
	return None
}

// Line is the last completed line.  It is reused by the next one.
func (e *Editor) Line() []byte {
	return e.line
}

func (e *Editor) Len() int {
	return e.pos
}
