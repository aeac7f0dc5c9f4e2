// Package monitoring owns the process logger.
//
// Packages log through Logger (or a Component child of it). The core jump
// packages never log.
package monitoring

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects the level and output format.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console output instead of JSON
	// Out defaults to stdout.
	Out io.Writer
}

// Logger is the package-level logger. It defaults to info level JSON on
// stderr until SetLogger replaces it.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// ParseLevel maps a level name to a zerolog level; unknown names are info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger with RFC3339 timestamps and caller info.
func New(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetLogger replaces the package logger and zerolog's global one.
func SetLogger(l zerolog.Logger) {
	Logger = l
	log.Logger = l
}

// Discard mutes all logging. Intended for tests.
func Discard() {
	SetLogger(zerolog.Nop())
}

// Component returns a child logger tagged with the component name.
func Component(name string) *zerolog.Logger {
	l := Logger.With().Str("component", name).Logger()
	return &l
}
