// Package image loads host files into memory segments for a write to the
// device: raw binaries, C64 PRG files, Intel HEX and Motorola S-records.
package image

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

type Segment struct {
	Addr uint32
	Data []byte
}

type Image struct {
	Segments []Segment
	// Start is the entry address if the file names one.
	Start    uint32
	HasStart bool
}

// Len is the number of data bytes in all segments.
func (im *Image) Len() int {
	n := 0
	for _, s := range im.Segments {
		n += len(s.Data)
	}
	return n
}

func Raw(bb []byte, addr uint32) *Image {
	return &Image{Segments: []Segment{{Addr: addr, Data: bb}}}
}

// PRG takes the load address from the first two bytes, little endian.
func PRG(bb []byte) (*Image, error) {
	if len(bb) < 2 {
		return nil, errors.Errorf("prg file of %d bytes has no load address", len(bb))
	}
	addr := uint32(bb[0]) | uint32(bb[1])<<8
	return &Image{
		Segments: []Segment{{Addr: addr, Data: bb[2:]}},
		Start:    addr,
		HasStart: true,
	}, nil
}

func IntelHex(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, errors.Wrap(err, "intel hex")
	}
	im := &Image{}
	for _, seg := range mem.GetDataSegments() {
		im.Segments = append(im.Segments, Segment{Addr: seg.Address, Data: seg.Data})
	}
	if addr, ok := mem.GetStartAddress(); ok {
		im.Start, im.HasStart = addr, true
	}
	return im, nil
}

// SRecord is one decoded S1 or S9 line.
type SRecord struct {
	Type byte
	Addr uint32
	Data []byte
}

func hexField(line string, at, n int) (uint64, error) {
	if at+n > len(line) {
		return 0, errors.Errorf("short record %q", line)
	}
	return strconv.ParseUint(line[at:at+n], 16, 64)
}

// DecodeSLine decodes an S1 or S9 record.  Other lines give nil.
func DecodeSLine(line string) (*SRecord, error) {
	if len(line) < 2 || line[0] != 'S' || (line[1] != '1' && line[1] != '9') {
		return nil, nil
	}
	count, err := hexField(line, 2, 2)
	if err != nil {
		return nil, errors.Wrapf(err, "count field in %q", line)
	}
	if count < 3 {
		return nil, errors.Errorf("count %d too small in %q", count, line)
	}
	addr, err := hexField(line, 4, 4)
	if err != nil {
		return nil, errors.Wrapf(err, "address field in %q", line)
	}

	size := int(count) - 3 // less 2 for addr and 1 for checksum
	data := make([]byte, size)
	for i := range data {
		datum, err := hexField(line, 8+2*i, 2)
		if err != nil {
			return nil, errors.Wrapf(err, "data byte %d in %q", i, line)
		}
		data[i] = byte(datum)
	}

	sum := byte(0)
	for i := 0; i <= int(count); i++ {
		datum, err := hexField(line, 2+2*i, 2)
		if err != nil {
			return nil, errors.Wrapf(err, "checksum in %q", line)
		}
		sum += byte(datum)
	}
	if sum != 0xff {
		return nil, errors.Errorf("bad checksum in %q", line)
	}

	return &SRecord{Type: line[1], Addr: uint32(addr), Data: data}, nil
}

// SRecords reads S1 data and the S9 start address.  Adjacent records are
// joined into one segment.
func SRecords(r io.Reader) (*Image, error) {
	im := &Image{}
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		rec, err := DecodeSLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		switch {
		case rec == nil:
		case rec.Type == '1':
			k := len(im.Segments) - 1
			if k >= 0 && im.Segments[k].Addr+uint32(len(im.Segments[k].Data)) == rec.Addr {
				im.Segments[k].Data = append(im.Segments[k].Data, rec.Data...)
			} else {
				im.Segments = append(im.Segments, Segment{Addr: rec.Addr, Data: rec.Data})
			}
		case rec.Type == '9':
			im.Start, im.HasStart = rec.Addr, true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading s-records")
	}
	return im, nil
}

// Load reads a file, choosing the format by extension.  addr places raw
// files and overrides the load address of PRG files when given.
func Load(path string, addr uint32, hasAddr bool) (*Image, error) {
	bb, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %q", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".prg":
		im, err := PRG(bb)
		if err != nil {
			return nil, err
		}
		if hasAddr {
			im.Segments[0].Addr = addr
		}
		return im, nil
	case ".hex", ".ihex", ".ihx":
		return IntelHex(bytes.NewReader(bb))
	case ".srec", ".s19", ".mot":
		return SRecords(bytes.NewReader(bb))
	}
	if !hasAddr {
		return nil, errors.Errorf("%q: raw file needs an address", path)
	}
	return Raw(bb, addr), nil
}
