// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Config selects level, format and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console, json or auto
	Output string // stderr, stdout or a file path
}

// Setup installs the global logger. The returned closer releases a log
// file, if one was opened.
func Setup(cfg Config) (io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		level = l
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
		tty              = isTerminal(os.Stderr)
	)
	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		out, tty = os.Stdout, isTerminal(os.Stdout)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		out, closer, tty = f, f, false
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = New(out, cfg.Format, tty)
	return closer, nil
}

// New builds a logger on out. Format "auto" or empty picks the console
// writer when tty is true.
func New(out io.Writer, format string, tty bool) zerolog.Logger {
	switch strings.ToLower(format) {
	case "console":
		tty = true
	case "json":
		tty = false
	}
	if tty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
