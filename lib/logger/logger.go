// Package logger builds the slog loggers used by runjs.
package logger

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/exp/slog"
)

const (
	// Console colored single line output
	Console = "console"
	// Text logfmt output
	Text = "text"
	// JSON line-delimited JSON output
	JSON = "json"
)

// Options the logging configuration
type Options struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is one of console, text or json.
	Format string `yaml:"format"`
}

// ParseLevel parses a level name, the empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return level, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// New returns a logger writing to w.
func New(w io.Writer, opt Options) (*slog.Logger, error) {
	level, err := ParseLevel(opt.Level)
	if err != nil {
		return nil, err
	}
	var handler slog.Handler
	switch strings.ToLower(opt.Format) {
	case "", Console:
		handler = NewConsoleHandler(w, level)
	case Text:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case JSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format %q", opt.Format)
	}
	return slog.New(handler), nil
}
