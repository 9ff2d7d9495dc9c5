package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs the service logger. Development gets debug level and
// a console writer; levelOverride (LOG_LEVEL) wins when it parses.
func NewLogger(appEnv, levelOverride string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, levelOverride)
}

func newLogger(out io.Writer, appEnv, levelOverride string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelOverride))); err == nil && levelOverride != "" {
		level = lvl
	}

	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("app", "travel-planner").
		Logger()
}

// Logger aliases the zerolog.Logger so callers outside the infra package can
// depend on the logging contract without importing the third-party module
// directly.
type Logger = zerolog.Logger

// Component derives a child logger tagged with the emitting component.
func Component(l Logger, name string) Logger {
	return l.With().Str("component", name).Logger()
}
