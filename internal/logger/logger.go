package logger

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var zapLevels = map[int]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
}

var (
	// Default to INFO in production, DEBUG in development
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	base     atomic.Pointer[zap.Logger]
	baseOnce sync.Once
)

// Logger is a component-scoped logger. It binds to the current root on
// use, so loggers created at package init follow a later Configure.
type Logger struct {
	component string
	fields    []interface{}
	bound     atomic.Pointer[boundLogger]
}

type boundLogger struct {
	root  *zap.Logger
	sugar *zap.SugaredLogger
}

func build(env string) *zap.Logger {
	var cfg zap.Config
	if env == "development" {
		cfg = zap.NewDevelopmentConfig()
		level.SetLevel(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		level.SetLevel(zapcore.InfoLevel)
	}
	cfg.Level = level

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func root() *zap.Logger {
	if l := base.Load(); l != nil {
		return l
	}
	baseOnce.Do(func() {
		base.CompareAndSwap(nil, build(GetAppEnv()))
	})
	return base.Load()
}

// Configure rebuilds the root logger for env. Call it once the
// environment is fully loaded.
func Configure(env string) {
	if old := base.Swap(build(env)); old != nil {
		_ = old.Sync()
	}
}

// Replace swaps the root logger and returns a function restoring the
// previous one
func Replace(l *zap.Logger) func() {
	prev := root()
	base.Store(l)
	return func() { base.Store(prev) }
}

// New creates a new logger for a specific component
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) sugar() *zap.SugaredLogger {
	r := root()
	if b := l.bound.Load(); b != nil && b.root == r {
		return b.sugar
	}
	s := r.Named(l.component).Sugar().With(l.fields...)
	l.bound.Store(&boundLogger{root: r, sugar: s})
	return s
}

// SetMinLevel allows changing the minimum log level at runtime
func SetMinLevel(l int) {
	if zl, ok := zapLevels[l]; ok {
		level.SetLevel(zl)
	}
}

// Sync flushes any buffered log entries
func Sync() {
	_ = root().Sync()
}

// With returns a child logger carrying structured fields
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	return &Logger{component: l.component, fields: append(fields, keysAndValues...)}
}

// Debug logs debug information
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar().Debugf(format, args...)
}

// Info logs information messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar().Infof(format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar().Warnf(format, args...)
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar().Errorf(format, args...)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "development" // Default to development
	}
	return env
}

// IsDevelopment returns true if the current environment is development
func IsDevelopment() bool {
	return GetAppEnv() == "development"
}
