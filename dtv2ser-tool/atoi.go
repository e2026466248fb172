package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SmartAtoi reads $hex, 0x hex, %bin, 0b bin, leading-zero octal or decimal.
func SmartAtoi(s string, bits int) (uint, error) {
	var num uint64
	var err error

	switch {
	case strings.HasPrefix(s, "$"):
		num, err = strconv.ParseUint(s[1:], 16, bits)
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		num, err = strconv.ParseUint(s[2:], 16, bits)
	case strings.HasPrefix(s, "%"):
		num, err = strconv.ParseUint(s[1:], 2, bits)
	case strings.HasPrefix(s, "0b"), strings.HasPrefix(s, "0B"):
		num, err = strconv.ParseUint(s[2:], 2, bits)
	case strings.HasPrefix(s, "0"):
		num, err = strconv.ParseUint(s, 8, bits)
	default:
		num, err = strconv.ParseUint(s, 10, bits)
	}

	if err != nil {
		return 0, errors.Errorf("bad numeric parse: %q", s)
	}
	return uint(num), nil
}

// Num is SmartAtoi for command arguments; a bad one ends the program.
func Num(s string, bits int) uint {
	n, err := SmartAtoi(s, bits)
	if err != nil {
		Fatalf("%v (%d bits)", err, bits)
	}
	return n
}
