// Command dtv2ser-tool talks to the bridge from the host PC.
//
//	dtv2ser-tool [flags] command args...
//
// Numbers take $hex, 0x hex, %bin, 0b bin, 0 octal or decimal.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	bugst "go.bug.st/serial"
	"zappem.net/pub/debug/xxd"

	"github.com/strickyak/dtv2ser/client"
	"github.com/strickyak/dtv2ser/cmdline"
	"github.com/strickyak/dtv2ser/image"
	"github.com/strickyak/dtv2ser/param"
	"github.com/strickyak/dtv2ser/transfer"
)

var WIRE = flag.String("wire", "/dev/ttyUSB0", "serial device of the bridge")
var BAUD = flag.Int("baud", 115200, "serial device baud rate")
var BLOCK = flag.Uint("block", 0x400, "transfer block size in bytes")
var TIMEOUT = flag.Duration("timeout", 2*time.Second, "wait for each reply byte")
var MEM = flag.Uint("mem", 0, "memory mode byte for r and w")
var DIAG = flag.Uint("diag", 0, "transfer mode: 0 normal, 1 serial only, 2 dtv only")

type Sub struct {
	Args string
	Help string
	Run  func(c *client.Client, args []string)
}

var Subs map[string]Sub

func init() {
	Subs = map[string]Sub{
		"version": {"", "bridge firmware version", doVersion},
		"alive":   {"[ticks]", "probe the DTV for up to ticks*10ms", doAlive},
		"reset":   {"[mode]", "reset the DTV: 0 normal, 1 dtvtrans, 2 bypass dtvmon", doReset},
		"go":      {"addr", "jump to addr on the DTV", doGo},
		"read":    {"addr len [file]", "read DTV memory to file, or dump it", doRead},
		"write":   {"file [addr]", "write a raw, prg, hex or srec file to DTV memory", doWrite},
		"verify":  {"file [addr]", "read back and compare a file", doVerify},
		"diag":    {"r|w addr len", "dtv only transfer against the diagnose pattern", doDiag},
		"boot":    {"file [addr]", "feed a file to the DTV boot loader", doBoot},
		"result":  {"", "status and time of the last transfer", doResult},
		"param":   {"list|get|set|save|load|reset ...", "bridge parameters", doParam},
		"joy":     {"moves...", "stream joystick moves, e.g. u5 f1 w10 -", doJoy},
		"cmd":     {"opcode outsize [bytes...]", "run a dtvtrans command", doCmd},
		"info":    {"", "device revision and implementation", doInfo},
		"console": {"", "type raw command lines", doConsole},
	}
}

func Usage() {
	fmt.Fprintf(os.Stderr, "usage: dtv2ser-tool [flags] command args...\n\n")
	names := []string{"ports"}
	for name := range Subs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "ports" {
			fmt.Fprintf(os.Stderr, "  %-8s %-34s %s\n", name, "", "list serial ports")
			continue
		}
		s := Subs[name]
		fmt.Fprintf(os.Stderr, "  %-8s %-34s %s\n", name, s.Args, s.Help)
	}
	fmt.Fprintf(os.Stderr, "\nflags:\n")
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("dtv2ser-tool: ")
	flag.Usage = Usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		Usage()
		os.Exit(2)
	}

	if args[0] == "ports" {
		ports, err := bugst.GetPortsList()
		if err != nil {
			Fatalf("cannot list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	sub, ok := Subs[args[0]]
	if !ok {
		Usage()
		os.Exit(2)
	}

	c, err := client.Open(*WIRE, *BAUD)
	if err != nil {
		Fatalf("%v", err)
	}
	defer c.Close()
	c.Timeout = *TIMEOUT
	c.BlockSize = uint16(*BLOCK)
	c.Logf = Logf

	sub.Run(c, args[1:])
}

var Logf = log.Printf

var Fatalf = log.Fatalf

func need(args []string, min, max int) {
	if len(args) < min || len(args) > max {
		Fatalf("want %d to %d arguments, got %q", min, max, args)
	}
}

func check(err error) {
	if err != nil {
		Fatalf("%v", err)
	}
}

func doVersion(c *client.Client, args []string) {
	need(args, 0, 0)
	major, minor, err := c.Version()
	check(err)
	fmt.Printf("dtv2ser %d.%d\n", major, minor)
}

func doAlive(c *client.Client, args []string) {
	need(args, 0, 1)
	ticks := uint(100)
	if len(args) == 1 {
		ticks = Num(args[0], 16)
	}
	check(c.Alive(uint16(ticks)))
	fmt.Println("alive")
}

func doReset(c *client.Client, args []string) {
	need(args, 0, 1)
	mode := uint(0)
	if len(args) == 1 {
		mode = Num(args[0], 8)
	}
	check(c.Reset(byte(mode)))
}

func doGo(c *client.Client, args []string) {
	need(args, 1, 1)
	check(c.Go(uint16(Num(args[0], 16))))
}

func setMode(c *client.Client) {
	check(c.SetMode(transfer.Mode(*DIAG)))
}

func report(c *client.Client, n int) {
	secs := float64(c.LastTime) / 100
	if secs > 0 {
		Logf("%d bytes in %.2fs, %.0f bytes/s", n, secs, float64(n)/secs)
	} else {
		Logf("%d bytes", n)
	}
}

func doRead(c *client.Client, args []string) {
	need(args, 2, 3)
	addr := uint32(Num(args[0], 24))
	length := uint32(Num(args[1], 24))
	setMode(c)
	data, err := c.Read(byte(*MEM), addr, length)
	check(err)
	report(c, len(data))
	if len(args) == 3 {
		check(os.WriteFile(args[2], data, 0644))
		return
	}
	xxd.Print(int(addr), data)
}

func loadImage(args []string) *image.Image {
	need(args, 1, 2)
	var addr uint32
	hasAddr := len(args) == 2
	if hasAddr {
		addr = uint32(Num(args[1], 24))
	}
	im, err := image.Load(args[0], addr, hasAddr)
	check(err)
	return im
}

func doWrite(c *client.Client, args []string) {
	im := loadImage(args)
	setMode(c)
	for _, seg := range im.Segments {
		Logf("writing $%06x..$%06x", seg.Addr, seg.Addr+uint32(len(seg.Data)))
		check(c.Write(byte(*MEM), seg.Addr, seg.Data))
		report(c, len(seg.Data))
	}
	if im.HasStart {
		Logf("start address $%04x", im.Start)
	}
}

func doVerify(c *client.Client, args []string) {
	im := loadImage(args)
	setMode(c)
	bad := 0
	for _, seg := range im.Segments {
		got, err := c.Read(byte(*MEM), seg.Addr, uint32(len(seg.Data)))
		check(err)
		for i, b := range seg.Data {
			if got[i] != b {
				if bad < 16 {
					Logf("$%06x: want %02x got %02x", seg.Addr+uint32(i), b, got[i])
				}
				bad++
			}
		}
	}
	if bad > 0 {
		Fatalf("%d bytes differ", bad)
	}
	fmt.Printf("%d bytes ok\n", im.Len())
}

func doDiag(c *client.Client, args []string) {
	need(args, 3, 3)
	write := strings.HasPrefix(args[0], "w")
	addr := uint32(Num(args[1], 24))
	length := uint32(Num(args[2], 24))
	check(c.DiagnoseDtv(write, byte(*MEM), addr, length))
	report(c, int(length))
}

func doBoot(c *client.Client, args []string) {
	im := loadImage(args)
	if len(im.Segments) != 1 {
		Fatalf("boot wants one segment, file has %d", len(im.Segments))
	}
	seg := im.Segments[0]
	chk, err := c.Boot(uint16(seg.Addr), seg.Data)
	check(err)
	fmt.Printf("booted %d bytes at $%04x, check %02x\n", len(seg.Data), seg.Addr, chk)
}

func doResult(c *client.Client, args []string) {
	need(args, 0, 0)
	st, ticks, err := c.Result()
	check(err)
	fmt.Printf("%v in %dms\n", st, int(ticks)*10)
}

func doJoy(c *client.Client, args []string) {
	script, err := JoyScript(args)
	check(err)
	check(c.Joy(script))
}

func doCmd(c *client.Client, args []string) {
	need(args, 2, 2+cmdline.MaxBytes-2)
	opcode := byte(Num(args[0], 8))
	outSize := byte(Num(args[1], 8))
	var in []byte
	for _, a := range args[2:] {
		in = append(in, byte(Num(a, 8)))
	}
	out, err := c.Command(opcode, outSize, in)
	check(err)
	fmt.Println(client.HexDump(out))
}

func doInfo(c *client.Client, args []string) {
	need(args, 0, 0)
	rev, err := c.QueryRevision()
	check(err)
	impl, err := c.QueryImplementation()
	check(err)
	fmt.Printf("revision %d.%d, %s\n", rev[0], rev[1], impl)
}

func doParam(c *client.Client, args []string) {
	need(args, 1, 4)
	switch args[0] {
	case "list":
		bb, ww, err := c.ParamList()
		check(err)
		for i, v := range bb {
			fmt.Printf("b%02x %-28s %6d  %s\n", i, paramName(param.ByteInfo[:], i), v, paramUnit(param.ByteInfo[:], i))
		}
		for i, v := range ww {
			fmt.Printf("w%02x %-28s %6d  %s\n", i, paramName(param.WordInfo[:], i), v, paramUnit(param.WordInfo[:], i))
		}
	case "get":
		need(args, 3, 3)
		i := int(Num(args[2], 8))
		if args[1] == "w" {
			v, err := c.GetWordParam(i)
			check(err)
			fmt.Printf("%d\n", v)
		} else {
			v, err := c.GetByteParam(i)
			check(err)
			fmt.Printf("%d\n", v)
		}
	case "set":
		need(args, 4, 4)
		i := int(Num(args[2], 8))
		if args[1] == "w" {
			check(c.SetWordParam(i, uint16(Num(args[3], 16))))
		} else {
			check(c.SetByteParam(i, byte(Num(args[3], 8))))
		}
	case "reset", "load", "save":
		op := map[string]byte{"reset": 0, "load": 1, "save": 2}[args[0]]
		r, err := c.ParamStore(op)
		check(err)
		fmt.Printf("%s: %v\n", args[0], r)
	default:
		Fatalf("unknown param command %q", args[0])
	}
}

func paramName(infos []param.Info, i int) string {
	if i < len(infos) {
		return infos[i].Name
	}
	return "?"
}

func paramUnit(infos []param.Info, i int) string {
	if i < len(infos) {
		return infos[i].Unit
	}
	return ""
}
