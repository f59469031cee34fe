// backend-go/pkg/logger/logger.go
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

var (
	// Log is the global logger instance
	Log zerolog.Logger
)

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	Configure(os.Stdout, false)
}

// Configure rebuilds the global logger. Pricing runs executed from cron or CI
// usually want JSON lines, interactive runs get the colored console writer.
func Configure(out io.Writer, jsonOutput bool) {
	var w io.Writer = out
	if !jsonOutput {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	Log = zerolog.New(w).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Caller().
		Logger()

	// Packages log through github.com/rs/zerolog/log, keep it pointed at the same sink.
	log.Logger = Log
}

// SetLevel sets the log level
func SetLevel(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		Log.Warn().Str("level", levelStr).Msg("invalid log level, defaulting to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	Log = Log.Level(level)
	log.Logger = Log
}
