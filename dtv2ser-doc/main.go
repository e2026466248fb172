// Command dtv2ser-doc writes the bridge reference (commands, parameters,
// status codes) as an HTML page, or as markdown with -md.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday"

	"github.com/strickyak/dtv2ser/server"
)

var MD = flag.Bool("md", false, "write markdown instead of HTML")
var OUT = flag.String("o", "", "output file instead of stdout")

func Markup(md []byte) []byte {
	html := blackfriday.MarkdownCommon(md)
	return bluemonday.UGCPolicy().SanitizeBytes(html)
}

func Page(md []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(HEAD)
	buf.Write(Markup(md))
	buf.WriteString(TAIL)
	return buf.Bytes()
}

func main() {
	log.SetFlags(0)
	flag.Parse()

	var md bytes.Buffer
	server.Reference(&md)

	out := md.Bytes()
	if !*MD {
		out = Page(out)
	}

	if *OUT == "" {
		os.Stdout.Write(out)
		return
	}
	if err := os.WriteFile(*OUT, out, 0644); err != nil {
		log.Fatalf("cannot write %q: %v", *OUT, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", *OUT)
}

const HEAD = `<!DOCTYPE html>
<html><head>
<meta charset="utf-8">
<title>dtv2ser reference</title>
<style>
body { font-family: sans-serif; max-width: 60em; margin: 2em auto; }
table { border-collapse: collapse; }
td, th { border: 1px solid #999; padding: 0.2em 0.6em; }
code { font-size: 110%; }
</style>
</head><body>
`

const TAIL = `
</body></html>
`
