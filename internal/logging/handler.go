// Package logging builds the slog handlers used by the command line and by
// test helpers: colorized tint output for terminals, JSON otherwise.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Formats accepted by NewHandler.
const (
	FormatPretty = "pretty"
	FormatJSON   = "json"
)

// Options configure NewHandler.
type Options struct {
	// Format is FormatPretty or FormatJSON. Empty means pretty.
	Format string
	// Level is debug, info, warn or error. Empty means info.
	Level string
}

// NewHandler returns a slog.Handler writing to out.
//
// Pretty output is only colorized when out is a terminal.
func NewHandler(out io.Writer, opts Options) (slog.Handler, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatPretty:
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		}), nil
	case FormatJSON:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s (valid: pretty, json)", opts.Format)
	}
}

// Setup installs a handler for out as the slog default and returns the logger.
func Setup(out io.Writer, opts Options) (*slog.Logger, error) {
	h, err := NewHandler(out, opts)
	if err != nil {
		return nil, err
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s (valid: debug, info, warn, error)", s)
	}
	return level, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
