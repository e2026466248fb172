package server

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/strickyak/dtv2ser/param"
	"github.com/strickyak/dtv2ser/status"
)

var patternWords = map[byte]string{
	'b': "byte",
	'w': "word",
	't': "tribyte",
	'*': "bytes...",
}

// PatternText spells out an argument pattern.
func PatternText(pattern string) string {
	if pattern == "" {
		return "-"
	}
	var words []string
	for i := 0; i < len(pattern); i++ {
		words = append(words, patternWords[pattern[i]])
	}
	return strings.Join(words, " ")
}

// CommandNames lists the command table in order.
func CommandNames() []string {
	var names []string
	for _, c := range (&Server{}).Commands() {
		names = append(names, c.Name)
	}
	return names
}

// Reference writes the command, parameter and status tables as markdown.
func Reference(w io.Writer) {
	fmt.Fprintf(w, "# dtv2ser %d.%d\n\n", VersionMajor, VersionMinor)

	fmt.Fprintf(w, "## Commands\n\n")
	fmt.Fprintf(w, "Arguments are hex digits: byte 2, word 4, tribyte 6.  ")
	fmt.Fprintf(w, "Every line is answered with a status byte first.\n\n")
	fmt.Fprintf(w, "| Command | Arguments | Effect |\n|---|---|---|\n")
	for _, c := range (&Server{}).Commands() {
		fmt.Fprintf(w, "| `%s` | %s | %s |\n", c.Name, PatternText(c.Pattern), c.Help)
	}

	fmt.Fprintf(w, "\n## Parameters\n\n")
	fmt.Fprintf(w, "| Get/Set | Name | Unit | Default |\n|---|---|---|---|\n")
	for i, info := range param.ByteInfo {
		fmt.Fprintf(w, "| `pbg%02x` | %s | %s | $%02x |\n", i, info.Name, info.Unit, param.Defaults.Bytes[i])
	}
	for i, info := range param.WordInfo {
		fmt.Fprintf(w, "| `pwg%02x` | %s | %s | $%04x |\n", i, info.Name, info.Unit, param.Defaults.Words[i])
	}

	fmt.Fprintf(w, "\n## Status codes\n\n")
	fmt.Fprintf(w, "| Code | Meaning |\n|---|---|\n")
	var codes []status.Code
	for code := range status.CodeNames {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	for _, code := range codes {
		fmt.Fprintf(w, "| `%02x` | %s |\n", byte(code), status.CodeNames[code])
	}
}
