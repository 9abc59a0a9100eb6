// Package hotlog provides a low-allocation logger for the per-item pipeline
// path, where pkg/logger's logrus field maps would show up in profiles once
// a batch runs into the thousands of items.
package hotlog

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger for the hot path.
type Logger struct {
	zerolog.Logger
}

// Config controls output format/level.
type Config struct {
	Level  string
	Pretty bool
}

// New builds a hot-path logger writing to stdout.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	return &Logger{Logger: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// NewDefault returns an info-level JSON logger bound to a component name.
func NewDefault(component string) *Logger {
	l := New(Config{Level: "info"})
	sub := l.Logger.With().Str("component", component).Logger()
	return &Logger{Logger: sub}
}

// Item returns a sub-logger pre-populated with item identity fields, reused
// across stages processing the same batch item.
func (l *Logger) Item(itemID, source, sourceID string) zerolog.Logger {
	return l.Logger.With().
		Str("item_id", itemID).
		Str("source", source).
		Str("source_id", sourceID).
		Logger()
}
