package fieldsim

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type DefaultLogger struct {
	mu     sync.Mutex
	prefix string
	level  zap.AtomicLevel
	sugar  *zap.SugaredLogger
}

// NewDefaultLogger writes console-encoded entries to stdout, warnings and errors to stderr.
func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return level.Enabled(l) && l < zapcore.WarnLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return level.Enabled(l) && l >= zapcore.WarnLevel
	})
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), low),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), high),
	)

	return &DefaultLogger{
		prefix: prefix,
		level:  level,
		sugar:  zap.New(core).Sugar(),
	}
}

// NewLoggerFromZap adapts an existing zap logger. Debug output follows the
// level of the wrapped core until SetDebug is called.
func NewLoggerFromZap(l *zap.Logger, prefix string) *DefaultLogger {
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	if !l.Core().Enabled(zapcore.DebugLevel) {
		level.SetLevel(zapcore.InfoLevel)
	}
	return &DefaultLogger{
		prefix: prefix,
		level:  level,
		sugar:  l.Sugar(),
	}
}

func (l *DefaultLogger) DebugEnabled() bool {
	return l.level.Enabled(zapcore.DebugLevel)
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if enabled {
		l.level.SetLevel(zapcore.DebugLevel)
	} else {
		l.level.SetLevel(zapcore.InfoLevel)
	}
}

func (l *DefaultLogger) prefixf(format string, args ...any) string {
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s", l.prefix, fmt.Sprintf(format, args...))
	}
	return fmt.Sprintf(format, args...)
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.sugar.Debug(l.prefixf(format, args...))
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.sugar.Info(l.prefixf(format, args...))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.sugar.Warn(l.prefixf(format, args...))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.sugar.Error(l.prefixf(format, args...))
}

// Sync flushes buffered entries.
func (l *DefaultLogger) Sync() error {
	return l.sugar.Sync()
}

// Nop logger

type nopLogger struct{}

func NewNopLogger() Logger                             { return &nopLogger{} }
func (n *nopLogger) DebugEnabled() bool                { return false }
func (n *nopLogger) SetDebug(enabled bool)             {}
func (n *nopLogger) Debugf(format string, args ...any) {}
func (n *nopLogger) Infof(format string, args ...any)  {}
func (n *nopLogger) Warnf(format string, args ...any)  {}
func (n *nopLogger) Errorf(format string, args ...any) {}

// OrNop returns l, or a no-op logger when l is nil. Never returns nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}
