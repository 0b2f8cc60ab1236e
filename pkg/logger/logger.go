// Package logger provides the structured logging setup shared by every
// component of the engine.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how the root logger is constructed.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // human-readable console output instead of JSON
}

// New builds the root zerolog.Logger. Every component derives a child logger
// from it via .With().Str("component", name).Logger() rather than creating
// loggers of its own.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writer = os.Stdout
	if cfg.Pretty {
		console := zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
		return zerolog.New(console).With().Timestamp().Logger()
	}
	return zerolog.New(writer).With().Timestamp().Logger()
}
