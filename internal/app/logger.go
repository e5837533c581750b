package app

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog.Logger configured from cfg. JSON is used in
// production or when LOG_FORMAT=json; a console writer otherwise.
func NewLogger(cfg *Config, service string) zerolog.Logger {
	return newLogger(os.Stdout, cfg, service)
}

func newLogger(out io.Writer, cfg *Config, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if cfg != nil {
		if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && l != zerolog.NoLevel {
			level = l
		}
	}

	if cfg != nil && !cfg.IsProduction() && cfg.LogFormat != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
