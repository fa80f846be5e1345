// Package logging builds the zerolog logger handed to the runner and CLI.
// The logger is injected, never global: tests and embedders point it at
// their own sink.
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger writing to out. Verbose enables debug
// events; otherwise info and above.
func New(out io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
