/*
Package logx wraps zerolog behind a small set of leveled helpers.

It owns global logger initialization (console output in development, JSON in
production) and exposes Info/Warn/Error/Fatal functions that accept optional
key-value fields.
*/
package logx

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global zerolog instance.
// Development mode uses a human-readable console writer at Debug level;
// production emits JSON at Info level. Caller information is always attached.
func Setup(isDevelopment bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if isDevelopment {
		logger = logger.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}).Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	log.Logger = logger.With().Caller().Logger()
}

// Logger returns the global zerolog.Logger.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// evenFields drops the fields slice entirely when it is not made of key-value
// pairs, so a bad call site cannot panic zerolog.
func evenFields(level string, fields []any) []any {
	if len(fields)%2 != 0 {
		Logger().Warn().
			Str("log_level", level).
			Int("fields_count", len(fields)).
			Msg("logx called with an odd number of fields; fields ignored")
		return nil
	}
	return fields
}

// Info logs at Info level with optional key-value fields.
func Info(msg string, fields ...any) {
	Logger().Info().Fields(evenFields("info", fields)).CallerSkipFrame(1).Msg(msg)
}

// Warn logs at Warn level with optional key-value fields.
func Warn(msg string, fields ...any) {
	Logger().Warn().Fields(evenFields("warn", fields)).CallerSkipFrame(1).Msg(msg)
}

// Error logs err at Error level with optional key-value fields.
func Error(err error, msg string, fields ...any) {
	Logger().Error().Err(err).Fields(evenFields("error", fields)).CallerSkipFrame(1).Msg(msg)
}

// Fatal logs err at Fatal level and terminates the process.
func Fatal(err error, msg string, fields ...any) {
	Logger().Fatal().Err(err).Fields(evenFields("fatal", fields)).CallerSkipFrame(1).Msg(msg)
}
