package main

import "testing"

func TestSmartAtoi(t *testing.T) {
	for _, c := range []struct {
		s    string
		bits int
		want uint
	}{
		{"$ff", 8, 0xff},
		{"0x0801", 16, 0x801},
		{"0X10", 16, 16},
		{"%101", 8, 5},
		{"0b11", 8, 3},
		{"017", 8, 15},
		{"0", 8, 0},
		{"1234", 16, 1234},
		{"$3fffff", 24, 0x3fffff},
	} {
		got, err := SmartAtoi(c.s, c.bits)
		if err != nil || got != c.want {
			t.Errorf("SmartAtoi(%q) = %d, %v; want %d", c.s, got, err, c.want)
		}
	}

	for _, bad := range []string{"", "$", "0x1g", "09", "$100", "-1"} {
		if got, err := SmartAtoi(bad, 8); err == nil {
			t.Errorf("SmartAtoi(%q) = %d, want error", bad, got)
		}
	}
}
