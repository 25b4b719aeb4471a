// Package logger builds the zerolog logger shared by the service and CLI.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Option configures a logger created with New.
type Option func(*options)

type options struct {
	debug   bool
	json    bool
	writers []io.Writer
}

// WithDebug lowers the level to Debug.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// WithJSON writes structured JSON lines instead of console output.
func WithJSON(json bool) Option {
	return func(o *options) { o.json = json }
}

// WithWriter overrides the output writer. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writers = []io.Writer{w} }
}

// New returns a logger with timestamps and caller information.
func New(opts ...Option) zerolog.Logger {
	o := &options{writers: []io.Writer{os.Stdout}}
	for _, opt := range opts {
		opt(o)
	}

	level := zerolog.InfoLevel
	if o.debug {
		level = zerolog.DebugLevel
	}

	var out io.Writer = io.MultiWriter(o.writers...)
	if !o.json {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: !isTerminal(o.writers)}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()
}

func isTerminal(writers []io.Writer) bool {
	if len(writers) != 1 {
		return false
	}
	f, ok := writers[0].(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
