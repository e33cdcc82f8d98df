// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-notifier/internal/model"
)

// New returns a logger writing to w at the configured level. Pretty output
// uses zerolog's console writer; otherwise each entry is one JSON line.
func New(w io.Writer, cfg model.LogConfig) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// NewStderr is New writing to standard error.
func NewStderr(cfg model.LogConfig) (zerolog.Logger, error) {
	return New(os.Stderr, cfg)
}

// ParseLevel parses a level name. An empty name means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parsing log level %q: %w", s, err)
	}
	return level, nil
}
