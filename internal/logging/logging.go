// Package logging builds the zerolog loggers used across receipt-stt.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/receipt-stt/internal/config"
)

// Field names shared by all components.
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
)

// New returns a logger writing to w at the given level. format "json" emits
// one JSON object per line; anything else uses the human console writer.
func New(w io.Writer, level, format string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(config.ParseLogLevel(level)).With().Timestamp().Logger()
}

// FromConfig builds a stderr logger from cfg.
func FromConfig(cfg *config.Config) zerolog.Logger {
	return New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

// Component tags l with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str(FieldComponent, name).Logger()
}
