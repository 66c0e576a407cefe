package logger

import (
	"github.com/code19m/errx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	messageKey = "msg"
	levelKey   = "level"
	nameKey    = "logger"
	callerKey  = "file"
	timeKey    = "time"

	EncodingConsole = "console"
	EncodingJSON    = "json"
)

// Config defines configuration options for the logger.
type Config struct {
	// Level specifies the minimum log level to emit.
	// Valid values are: "debug", "info", "warn", "error".
	Level string `mapstructure:"level" validate:"oneof=debug info warn error" default:"info"`

	// Encoding specifies the log format.
	// "json" produces compact JSON lines; "console" produces colored, human-readable lines.
	Encoding string `mapstructure:"encoding" validate:"oneof=json console" default:"json"`

	// File, when set, receives the log output instead of stdout.
	File string `mapstructure:"file"`
}

func (c Config) level() (zap.AtomicLevel, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return lvl, errx.Wrap(err)
	}
	return lvl, nil
}

func (c Config) outputPaths() []string {
	if c.File != "" {
		return []string{c.File}
	}
	return []string{"stdout"}
}

func (c Config) encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     messageKey,
		LevelKey:       levelKey,
		NameKey:        nameKey,
		CallerKey:      callerKey,
		TimeKey:        timeKey,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}
