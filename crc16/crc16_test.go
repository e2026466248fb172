package crc16

import "testing"

func TestCheckValue(t *testing.T) {
	// CRC-16/MODBUS check value.
	got := Checksum([]byte("123456789"))
	if got != 0x4B37 {
		t.Errorf("Checksum(123456789) = %04x, want 4b37", got)
	}
}

func TestUpdateIsOrderDependent(t *testing.T) {
	a := Checksum([]byte{1, 2, 3})
	b := Checksum([]byte{3, 2, 1})
	if a == b {
		t.Errorf("crc of permuted input collides: %04x", a)
	}
}

func TestRunningAcrossBlocks(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	whole := Checksum(data)

	crc := uint16(Init)
	for pos := 0; pos < len(data); pos += 64 {
		end := pos + 64
		if end > len(data) {
			end = len(data)
		}
		crc = UpdateBytes(crc, data[pos:end])
	}
	if crc != whole {
		t.Errorf("blockwise crc %04x != whole %04x", crc, whole)
	}
}

func TestSum(t *testing.T) {
	var sum byte
	for _, b := range []byte{0x00, 0xff, 0x10} {
		sum = Sum(sum, b)
	}
	// 1 + 0 + 0x11
	if sum != 0x12 {
		t.Errorf("Sum = %02x, want 12", sum)
	}
}
