// Package logging provides the structured logger used throughout the
// controller, wrapping zap's sugared logger with the Named/sub-logger
// conventions the rest of the tree expects.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface every package in this module logs through.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Named returns a child logger whose name is "parent.name".
	Named(name string) Logger

	// Sublogger is Named's synonym, matching the naming callers reaching for
	// a scoped child logger (one per servo, one per sweep) tend to use.
	Sublogger(name string) Logger

	// WithFields returns a logger that annotates every subsequent entry with
	// the given alternating key/value pairs, without otherwise changing the
	// logger's name.
	WithFields(keysAndValues ...interface{}) Logger
}

type sugarLogger struct {
	*zap.SugaredLogger
}

func (s *sugarLogger) Named(name string) Logger {
	return &sugarLogger{s.SugaredLogger.Named(name)}
}

func (s *sugarLogger) Sublogger(name string) Logger {
	return s.Named(name)
}

func (s *sugarLogger) WithFields(keysAndValues ...interface{}) Logger {
	return &sugarLogger{s.SugaredLogger.With(keysAndValues...)}
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewLogger returns a console-encoded, info-level logger named name,
// writing to stdout/stderr.
func NewLogger(name string) Logger {
	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding:          "console",
		EncoderConfig:     consoleEncoderConfig(),
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	z := zap.Must(cfg.Build())
	return &sugarLogger{z.Sugar().Named(name)}
}

// NewDebugLogger is NewLogger with the level dropped to Debug.
func NewDebugLogger(name string) Logger {
	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(zap.DebugLevel),
		Encoding:          "console",
		EncoderConfig:     consoleEncoderConfig(),
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	z := zap.Must(cfg.Build())
	return &sugarLogger{z.Sugar().Named(name)}
}

// NewObservedLogger returns a logger writing entries only through the given
// zapcore.Core, used by tests that want to assert on log content.
func NewObservedLogger(name string, core zapcore.Core) Logger {
	z := zap.New(core)
	return &sugarLogger{z.Sugar().Named(name)}
}

// NewTestLogger returns a logger suitable for use in _test.go files: debug
// level, writing to stderr so `go test -v` shows it.
func NewTestLogger() Logger {
	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(zap.DebugLevel),
		Encoding:          "console",
		EncoderConfig:     consoleEncoderConfig(),
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	z := zap.Must(cfg.Build())
	return &sugarLogger{z.Sugar().Named("test")}
}
