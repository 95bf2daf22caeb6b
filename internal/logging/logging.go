package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the service logger. Output is JSON by default; set
// LOG_FORMAT=console for human-readable output during development.
// LOG_LEVEL selects the minimum level (default info).
func New(component string) zerolog.Logger {
	var logger zerolog.Logger
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return logger.Level(level).With().
		Timestamp().
		Str("component", component).
		Logger()
}
