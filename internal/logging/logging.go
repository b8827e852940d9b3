// Package logging builds the zerolog logger used by the binaries.
package logging

import (
	"io"
	"time"

	"github.com/afroash/vpd-monitor/internal/config"
	"github.com/rs/zerolog"
)

// New returns a logger writing to w in the configured format and level.
// An unparseable level falls back to info.
func New(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := w
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: true}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
