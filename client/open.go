package client

import (
	"github.com/pkg/errors"
	"github.com/pkg/term"
)

// Open puts the tty in raw mode at baud and drives the bridge through it.
// Close also closes the tty.
func Open(tty string, baud int) (*Client, error) {
	t, err := term.Open(tty, term.Speed(baud), term.RawMode)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %q", tty)
	}
	c := New(t)
	c.port = t
	return c, nil
}
