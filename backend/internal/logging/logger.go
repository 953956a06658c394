// Package logging sets up the file logger. The terminal belongs to the UI, so nothing is
// written to stdout while it runs.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const timeFormat = "15:04:05"

// Path returns the log file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, "app.log")
}

// Options controls New.
type Options struct {
	Dir   string
	Debug bool
	// Console mirrors log lines to it until the UI starts; nil disables mirroring.
	Console io.Writer
}

// gate is a writer that can be switched off.
type gate struct {
	mu sync.Mutex
	w  io.Writer
}

func (g *gate) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.w == nil {
		return len(p), nil
	}
	return g.w.Write(p)
}

// Handle owns the log file and the console mirror.
type Handle struct {
	file    *os.File
	console *gate
}

// DetachConsole stops mirroring to the console. Call it before the UI takes the terminal.
func (h *Handle) DetachConsole() {
	h.console.mu.Lock()
	h.console.w = nil
	h.console.mu.Unlock()
}

func (h *Handle) Close() error {
	h.DetachConsole()
	return h.file.Close()
}

// New opens (appending) the log file and returns a logger writing to it. The global zerolog
// logger is replaced as well.
func New(opts Options) (zerolog.Logger, *Handle, error) {
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("could not create log directory: %w", err)
	}
	f, err := os.OpenFile(Path(opts.Dir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("could not open log file: %w", err)
	}
	h := &Handle{file: f, console: &gate{w: opts.Console}}

	var out io.Writer = zerolog.ConsoleWriter{Out: f, TimeFormat: timeFormat, NoColor: true}
	if opts.Console != nil {
		out = zerolog.MultiLevelWriter(out, zerolog.ConsoleWriter{Out: h.console, TimeFormat: timeFormat})
	}

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger, h, nil
}
