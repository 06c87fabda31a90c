// Package logging builds the zerolog logger used across the reconciler and
// carries it through context.Context.
//
//	log := logging.New(logging.Config{Level: "debug", Format: "console"})
//	ctx := logging.WithLogger(context.Background(), &log)
//	logging.FromContext(ctx).Info().Str("partition", key).Msg("Partition scored")
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration options
type Config struct {
	// Level is the minimum log level to output
	Level string `mapstructure:"level"`

	// Format is the output format (json, console)
	Format string `mapstructure:"format"`

	// Output overrides the destination; nil means stderr
	Output io.Writer `mapstructure:"-"`
}

var defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// New creates a logger from configuration
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level := parseLevel(cfg.Level)
	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()

	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}

	return logger
}

// SetDefault replaces the fallback logger returned by FromContext
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
}

// Default returns the fallback logger
func Default() *zerolog.Logger {
	return &defaultLogger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "disabled", "none", "off":
		return zerolog.Disabled
	default:
		if l, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			return l
		}
		return zerolog.InfoLevel
	}
}
