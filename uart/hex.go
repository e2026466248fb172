package uart

const hexDigits = "0123456789ABCDEF"

// HexByte renders b as two upper case hex digits.
func HexByte(b byte) []byte {
	return []byte{hexDigits[b>>4], hexDigits[b&15]}
}

func HexWord(w uint16) []byte {
	return append(HexByte(byte(w>>8)), HexByte(byte(w))...)
}

func SendData(p Port, bb []byte) bool {
	for _, b := range bb {
		if !p.Send(b) {
			return false
		}
	}
	return true
}

func SendCRLF(p Port) bool {
	return SendData(p, []byte{'\r', '\n'})
}

func SendHexByte(p Port, b byte) bool {
	return SendData(p, HexByte(b))
}

func SendHexByteCRLF(p Port, b byte) bool {
	return SendHexByte(p, b) && SendCRLF(p)
}

func SendHexWordCRLF(p Port, w uint16) bool {
	return SendData(p, HexWord(w)) && SendCRLF(p)
}

// ParseNybble accepts 0-9, a-f and A-F.
func ParseNybble(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// ParseHex reads len(s) hex digits big endian.
func ParseHex(s []byte) (uint32, bool) {
	var v uint32
	for _, c := range s {
		n, ok := ParseNybble(c)
		if !ok {
			return 0, false
		}
		v = v<<4 | uint32(n)
	}
	return v, true
}
