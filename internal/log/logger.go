package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Production gets plain JSON lines, anything
// else gets the console writer at debug level.
func New(environment string, component string) zerolog.Logger {
	return NewWithWriter(os.Stdout, environment, component)
}

func NewWithWriter(out io.Writer, environment string, component string) zerolog.Logger {
	writer := out
	if environment != "production" {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	ctx := zerolog.New(writer).With().
		Timestamp().
		Str("env", environment)
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	logger := ctx.Logger()

	if environment != "production" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	return logger
}
