package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/strickyak/dtv2ser/client"
	"github.com/strickyak/dtv2ser/server"
)

// quiet is how long the bridge stays silent before a reply counts as done.
const quiet = 300 * time.Millisecond

// doConsole reads command lines from the user and prints what the bridge
// answers.  Transfers are better left to the other commands; their raw
// bytes show up here as they come.
func doConsole(c *client.Client, args []string) {
	need(args, 0, 0)

	names := server.CommandNames()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(s string) (out []string) {
		for _, n := range names {
			if strings.HasPrefix(n, s) {
				out = append(out, n)
			}
		}
		return
	})

	for {
		s, err := line.Prompt("dtv2ser> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return
		}
		check(err)
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		line.AppendHistory(s)
		if s == "quit" || s == "exit" {
			return
		}

		out, err := c.Exchange(s, quiet)
		fmt.Print(strings.ReplaceAll(string(out), "\r\n", "\n"))
		if err != nil {
			fmt.Printf("[%v]\n", err)
			return
		}
	}
}
