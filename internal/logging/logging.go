package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a zerolog logger configured for stdout. The level defaults to
// info and can be lowered with MU_LOG_LEVEL=debug.
func New() zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(os.Getenv("MU_LOG_LEVEL")); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
