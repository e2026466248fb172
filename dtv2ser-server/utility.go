package main

import (
	"fmt"
	"log"
	"os"
)

var Logf = log.Printf

func Panicf(format string, args ...any) {
	log.Panicf("PANIC: "+format, args...)
}

// LimitedLogWriter exits the program once too much was logged.
type LimitedLogWriter struct {
	Limit   uint64
	Current uint64
}

func InstallLimitedLogWriter() {
	llw := &LimitedLogWriter{
		Limit: *LogLimit,
	}
	log.SetOutput(llw)
}

func (llw *LimitedLogWriter) Write(bb []byte) (int, error) {
	llw.Current += uint64(len(bb))
	if llw.Current > llw.Limit {
		fmt.Fprintf(os.Stderr, "\n***\nFatal: LimitedLogWriter exceeded its limit of %d bytes\n", llw.Limit)
		os.Exit(13)
	}
	return os.Stderr.Write(bb)
}
