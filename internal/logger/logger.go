package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// loggers pairs a zap logger with its sugared form so both swap together.
type loggers struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

// current is replaced by Init and SetLogger while workers may be logging.
var current atomic.Pointer[loggers]

func init() {
	store(zap.NewNop())
}

func store(l *zap.Logger) {
	current.Store(&loggers{base: l, sugar: l.Sugar()})
}

// L returns the global sugared logger. It is a no-op until Init is called.
func L() *zap.SugaredLogger {
	return current.Load().sugar
}

// Options control where and how log entries are written.
type Options struct {
	Level  string   // debug, info, warn, error
	Format string   // console or json
	Paths  []string // Output sinks, defaults to stderr
}

// Init initializes the logger with the given level and format, writing to stderr.
func Init(level, format string) error {
	return InitWithOptions(Options{Level: level, Format: format})
}

// InitWithOptions initializes the logger. The TUI owns the terminal, so it
// passes a log file path here instead of stderr.
func InitWithOptions(opts Options) error {
	var config zap.Config

	if opts.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.Encoding = "console"
	}

	zapLevel, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "msg"
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if len(opts.Paths) > 0 {
		config.OutputPaths = opts.Paths
		config.ErrorOutputPaths = opts.Paths
	}

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	store(built)
	return nil
}

// parseLevel converts string log level to zapcore.Level
func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// Sync flushes any buffered log entries
func Sync() error {
	return current.Load().base.Sync()
}

// GetZapLogger returns the underlying zap.Logger
func GetZapLogger() *zap.Logger {
	return current.Load().base
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	store(l)
}

// WithFields returns a logger with additional fields
func WithFields(fields map[string]interface{}) *zap.SugaredLogger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	return L().With(args...)
}
