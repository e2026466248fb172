package image

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPRG(t *testing.T) {
	im, err := PRG([]byte{0x01, 0x08, 0xaa, 0xbb})
	if err != nil {
		t.Fatal(err)
	}
	if im.Segments[0].Addr != 0x0801 || !bytes.Equal(im.Segments[0].Data, []byte{0xaa, 0xbb}) || im.Start != 0x0801 {
		t.Errorf("prg %+v", im)
	}
	if _, err := PRG([]byte{1}); err == nil {
		t.Errorf("one byte prg accepted")
	}
}

func TestSRecords(t *testing.T) {
	src := "S1060100010203F2\r\nS104010304F3\nS0030000FC\nS9030100FB\n"
	im, err := SRecords(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(im.Segments) != 1 {
		t.Fatalf("segments %+v", im.Segments)
	}
	if s := im.Segments[0]; s.Addr != 0x100 || !bytes.Equal(s.Data, []byte{1, 2, 3, 4}) {
		t.Errorf("segment %+v", s)
	}
	if !im.HasStart || im.Start != 0x100 {
		t.Errorf("start %x", im.Start)
	}

	for _, bad := range []string{"S1060100010203F3", "S10601000102", "S1zz"} {
		if _, err := DecodeSLine(bad); err == nil {
			t.Errorf("%q decoded", bad)
		}
	}
}

func TestIntelHex(t *testing.T) {
	src := ":03010000010203F6\n:00000001FF\n"
	im, err := IntelHex(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(im.Segments) != 1 || im.Segments[0].Addr != 0x100 || !bytes.Equal(im.Segments[0].Data, []byte{1, 2, 3}) {
		t.Errorf("segments %+v", im.Segments)
	}
	if im.Len() != 3 {
		t.Errorf("len %d", im.Len())
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, bb []byte) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, bb, 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	raw := write("data.bin", []byte{9, 8, 7})
	if _, err := Load(raw, 0, false); err == nil {
		t.Errorf("raw file without address loaded")
	}
	im, err := Load(raw, 0x4000, true)
	if err != nil || im.Segments[0].Addr != 0x4000 || im.Len() != 3 {
		t.Errorf("raw %+v %v", im, err)
	}

	prg := write("game.PRG", []byte{0x00, 0x10, 1})
	if im, err := Load(prg, 0, false); err != nil || im.Segments[0].Addr != 0x1000 {
		t.Errorf("prg %+v %v", im, err)
	}
	if im, err := Load(prg, 0x2000, true); err != nil || im.Segments[0].Addr != 0x2000 {
		t.Errorf("prg at 2000 %+v %v", im, err)
	}

	srec := write("x.s19", []byte("S104010304F3\n"))
	if im, err := Load(srec, 0, false); err != nil || im.Segments[0].Addr != 0x103 {
		t.Errorf("srec %+v %v", im, err)
	}

	if _, err := Load(filepath.Join(dir, "missing.bin"), 0, true); err == nil {
		t.Errorf("missing file loaded")
	}
}
