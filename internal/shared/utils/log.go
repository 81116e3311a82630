package utils

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. Development gets a
// console writer, everything else gets JSON lines.
func InitLogger(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Ctx returns the global logger tagged with the correlation id carried by
// ctx, if any.
func Ctx(ctx context.Context) zerolog.Logger {
	if id := CorrelationID(ctx); id != "" {
		return log.With().Str("correlation_id", id).Logger()
	}
	return log.Logger
}
