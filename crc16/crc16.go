// Package crc16 is the running block CRC of dtv2ser.
//
// It is the reflected 0xA001 polynomial with an 0xFFFF seed and no final
// xor, updated one byte at a time, as the host client computes it.
package crc16

const (
	Init = 0xFFFF
	Poly = 0xA001
)

func Update(crc uint16, b byte) uint16 {
	crc ^= uint16(b)
	for i := 0; i < 8; i++ {
		if crc&1 != 0 {
			crc = (crc >> 1) ^ Poly
		} else {
			crc >>= 1
		}
	}
	return crc
}

// Checksum runs Update over data from the Init seed.
func Checksum(data []byte) uint16 {
	return UpdateBytes(Init, data)
}

func UpdateBytes(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = Update(crc, b)
	}
	return crc
}

// Sum is the 8 bit additive block check of dtvtrans: sum of (b+1).
func Sum(sum byte, b byte) byte {
	return sum + b + 1
}
