package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/strickyak/dtv2ser/hal"
)

var joyLetters = map[rune]byte{
	'u': hal.JoyUp,
	'd': hal.JoyDown,
	'l': hal.JoyLeft,
	'r': hal.JoyRight,
	'f': hal.JoyFire,
}

// maxJoyWait is the most ticks one wait byte holds.
const maxJoyWait = hal.JoyMask

// JoyScript turns move words into a joystick stream.
//
// A word is a set of directions and fire (u d l r f), or "-" for none,
// then an optional hold time in 10ms ticks: "uf5" pushes up with fire for
// 50ms.  "w20" only waits.  Long waits take several bytes.
func JoyScript(words []string) ([]byte, error) {
	var out []byte
	wait := func(ticks uint64) {
		for ticks > 0 {
			n := ticks
			if n > maxJoyWait {
				n = maxJoyWait
			}
			out = append(out, hal.JoyCmdWait|byte(n))
			ticks -= n
		}
	}

	for _, w := range words {
		w = strings.ToLower(w)
		i := strings.IndexAny(w, "0123456789")
		if i < 0 {
			i = len(w)
		}
		moves, digits := w[:i], w[i:]
		var ticks uint64
		if digits != "" {
			var err error
			if ticks, err = strconv.ParseUint(digits, 10, 16); err != nil {
				return nil, errors.Errorf("bad hold time in %q", w)
			}
		}

		switch moves {
		case "":
			return nil, errors.Errorf("no move in %q", w)
		case "w":
			wait(ticks)
			continue
		case "-":
			out = append(out, hal.JoyCmdOut)
		default:
			var mask byte
			for _, c := range moves {
				bit, ok := joyLetters[c]
				if !ok {
					return nil, errors.Errorf("bad move %q in %q", c, w)
				}
				mask |= bit
			}
			out = append(out, hal.JoyCmdOut|mask)
		}
		wait(ticks)
	}
	return append(out, hal.JoyCmdExit), nil
}
