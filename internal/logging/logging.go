package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Cfg struct {
	Level string
	JSON  bool
}

// Logger pairs the root logger with its level so a config reload can change
// verbosity in place.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

func New(c Cfg) *Logger {
	cfg := zap.NewProductionConfig()
	if !c.JSON {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if c.Level != "" {
		_ = cfg.Level.UnmarshalText([]byte(c.Level))
	}
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return &Logger{Logger: l, level: cfg.Level}
}

// SetLevel changes the level of every logger derived from l.
func (l *Logger) SetLevel(level string) error {
	return l.level.UnmarshalText([]byte(level))
}

func (l *Logger) Level() zapcore.Level { return l.level.Level() }
