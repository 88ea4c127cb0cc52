package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup builds the service logger on stdout.
//   - level: trace, debug, info, warn, error, fatal or panic; unknown values mean info
//   - format: "pretty" for console output, anything else for JSON lines
func Setup(level, format string) zerolog.Logger {
	return New(os.Stdout, level, format).
		With().
		Str("service", "wellcheck").
		Caller().
		Logger()
}

// New builds a logger writing to w. The CLI logs to stderr so command
// output on stdout stays machine readable.
func New(w io.Writer, level, format string) zerolog.Logger {
	if format == "pretty" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(w).With().Timestamp().Logger()
}
