// Package logging builds the process zerolog logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects level, encoding and destination.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
	Output string // stdout|stderr
}

// New builds a logger, installs it as the zerolog global and applies the
// global level. The writer override is used by tests.
func New(cfg Config, w ...io.Writer) (zerolog.Logger, error) {
	levelName := strings.ToLower(strings.TrimSpace(cfg.Level))
	if levelName == "" {
		levelName = "info"
	}
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer
	switch {
	case len(w) > 0 && w[0] != nil:
		out = w[0]
	case strings.EqualFold(cfg.Output, "stderr"):
		out = os.Stderr
	case cfg.Output == "" || strings.EqualFold(cfg.Output, "stdout"):
		out = os.Stdout
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log output %q (expected stdout|stderr)", cfg.Output)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q (expected json|console)", cfg.Format)
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}

// Component returns a child logger tagged with the component name.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
