package logger

import (
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// devEncoder is the console encoder with the level colored by severity.
type devEncoder struct {
	zapcore.Encoder
	pool buffer.Pool
}

func newDevEncoder(encoderConfig zapcore.EncoderConfig) zapcore.Encoder {
	return &devEncoder{
		Encoder: zapcore.NewConsoleEncoder(encoderConfig),
		pool:    buffer.NewPool(),
	}
}

// Clone keeps the wrapper on loggers derived with With.
func (e *devEncoder) Clone() zapcore.Encoder {
	return &devEncoder{Encoder: e.Encoder.Clone(), pool: e.pool}
}

func (e *devEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	consoleBuf, err := e.Encoder.EncodeEntry(entry, fields)
	if err != nil {
		return nil, err
	}
	line := strings.TrimRight(consoleBuf.String(), "\n")
	consoleBuf.Free()

	buf := e.pool.Get()
	buf.AppendString(colorizeLevel(line, entry.Level))
	buf.AppendString("\n")
	return buf, nil
}

func colorizeLevel(line string, level zapcore.Level) string {
	var c *color.Color
	switch level {
	case zapcore.DebugLevel:
		c = color.New(color.FgCyan)
	case zapcore.InfoLevel:
		c = color.New(color.FgGreen)
	case zapcore.WarnLevel:
		c = color.New(color.FgYellow)
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		c = color.New(color.FgRed, color.Bold)
	default:
		return line
	}

	capLevel := level.CapitalString()
	if strings.Contains(line, capLevel) {
		return strings.Replace(line, capLevel, c.Sprint(capLevel), 1)
	}
	return line
}
