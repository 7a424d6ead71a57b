// Package logging sets up the apex/log handler shared by the commands.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/apex/log/handlers/text"
)

// New returns a text logger writing to w at the named level. Unknown levels
// fall back to info.
func New(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	l := &log.Logger{Handler: text.New(w), Level: lvl}
	log.Log = l
	return l
}

// Discard returns a logger that drops everything (tests).
func Discard() *log.Logger {
	return &log.Logger{Handler: discard.New(), Level: log.DebugLevel}
}
