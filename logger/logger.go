// Package logger provides a structured logging interface for the server.
//
// It wraps zap's SugaredLogger behind a small interface so packages depend on
// Logger rather than on zap directly.
package logger

import (
	"os"

	"github.com/code19m/errx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the logging interface used across the server.
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)

	// Debugw logs a message with key-value pairs at debug level.
	Debugw(msg string, keysAndValues ...any)
	// Infow logs a message with key-value pairs at info level.
	Infow(msg string, keysAndValues ...any)
	// Warnw logs a message with key-value pairs at warn level.
	Warnw(msg string, keysAndValues ...any)
	// Errorw logs a message with key-value pairs at error level.
	Errorw(msg string, keysAndValues ...any)

	// With creates a child logger that adds the key-value pairs to every entry.
	With(keysAndValues ...any) Logger
	// Named adds a sub-scope to the logger's name.
	Named(name string) Logger

	// Sync flushes any buffered log entries.
	Sync() error
}

type logger struct {
	*zap.SugaredLogger
}

// New creates a Logger from cfg.
func New(cfg Config) (Logger, error) {
	lvl, err := cfg.level()
	if err != nil {
		return nil, err
	}

	sink, _, err := zap.Open(cfg.outputPaths()...)
	if err != nil {
		return nil, errx.Wrap(err)
	}

	var enc zapcore.Encoder
	if cfg.Encoding == EncodingConsole {
		enc = newDevEncoder(cfg.encoderConfig())
	} else {
		enc = zapcore.NewJSONEncoder(cfg.encoderConfig())
	}

	core := zapcore.NewCore(enc, sink, lvl)
	zapLogger := zap.New(core,
		zap.AddCaller(),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	)

	return &logger{SugaredLogger: zapLogger.Sugar()}, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return &logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *logger) With(keysAndValues ...any) Logger {
	return &logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...)}
}

func (l *logger) Named(name string) Logger {
	return &logger{SugaredLogger: l.SugaredLogger.Named(name)}
}
