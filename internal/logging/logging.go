// Package logging configures the structured logger used by agent containers
// and Lambda handlers.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to stderr with the given prefix. The level is
// taken from LOG_LEVEL and defaults to info.
func New(prefix string) *log.Logger {
	return NewWithWriter(os.Stderr, prefix, os.Getenv("LOG_LEVEL"))
}

// NewWithWriter is New with an explicit writer and level string.
func NewWithWriter(w io.Writer, prefix, level string) *log.Logger {
	lvl := log.InfoLevel
	if level != "" {
		if parsed, err := log.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
		Level:           lvl,
	})
}
