package di

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ProvideLogger creates a zerolog.Logger for the runtime environment. Lambda
// gets JSON on stdout; a terminal gets the console writer. LOG_LEVEL selects
// the level and defaults to info.
func ProvideLogger() zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stdout}
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		out = os.Stdout
	}
	return newLogger(out, os.Getenv("LOG_LEVEL"))
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// parseLevel falls back to info when level is empty or unknown
func parseLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
