package sysutil

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/instalist/instalist-server/internal/config"
)

// LogOptions selects the global logger's level, format and sinks.
type LogOptions struct {
	Level  string
	Pretty bool
	File   config.LogFileConfig
	// Out is the console sink; nil means stdout.
	Out io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogger installs the global zerolog logger. Console output is JSON
// unless Pretty is set; when File.Path is set, JSON lines are also written
// to a size-rotated file. The returned closer releases the file sink.
func SetupLogger(opts LogOptions) (zerolog.Logger, io.Closer) {
	SetLogLevel(opts.Level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    IsTruthy(os.Getenv("NO_COLOR")),
		}
	}

	var closer io.Closer = nopCloser{}
	if opts.File.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File.Path,
			MaxSize:    opts.File.MaxSizeMB,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, lj)
		closer = lj
	}

	logger := zerolog.New(out).With().Timestamp().Str("service", "instalist-server").Logger()
	log.Logger = logger
	return logger, closer
}
