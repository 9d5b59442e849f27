package main

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Zereker/framed"
)

// zerologLogger adapts zerolog to framed.Logger. Key-value args become
// fields on the event.
type zerologLogger struct {
	l zerolog.Logger
}

func (z zerologLogger) Debug(msg string, args ...any) { z.l.Debug().Fields(args).Msg(msg) }
func (z zerologLogger) Info(msg string, args ...any)  { z.l.Info().Fields(args).Msg(msg) }
func (z zerologLogger) Warn(msg string, args ...any)  { z.l.Warn().Fields(args).Msg(msg) }
func (z zerologLogger) Error(msg string, args ...any) { z.l.Error().Fields(args).Msg(msg) }

var _ framed.Logger = zerologLogger{}

func newLogger(flags *globalFlags) (framed.Logger, error) {
	return buildLogger(os.Stderr, flags.logLevel, flags.logFormat)
}

func buildLogger(out io.Writer, level, format string) (framed.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}

	switch format {
	case "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}

	return zerologLogger{l: zerolog.New(out).Level(lvl).With().Timestamp().Logger()}, nil
}
