package zaplogger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logger struct{ l *zap.Logger }

// Logger is the zap-backed observability.Logger with a runtime-adjustable level.
type Logger interface {
	observability.Logger
	SetLevel(level string) error
	Sync() error
}

type options struct {
	level   string
	logFile string
	fixed   []observability.Field
}

type Option func(*options)

// WithLevel sets the initial level ("debug", "info", "warn", "error").
func WithLevel(level string) Option { return func(o *options) { o.level = level } }

// WithFile duplicates output into path, creating parent directories when needed.
func WithFile(path string) Option { return func(o *options) { o.logFile = path } }

// WithFields attaches fields to every entry.
func WithFields(fields ...observability.Field) Option {
	return func(o *options) { o.fixed = append(o.fixed, fields...) }
}

type leveled struct {
	*logger
	level zap.AtomicLevel
}

func New(opts ...Option) Logger {
	o := options{level: "info", logFile: os.Getenv("LOG_FILE")}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stdout"}

	if o.logFile != "" {
		if err := ensureLogFile(o.logFile); err != nil {
			panic(fmt.Errorf("prepare log file: %w", err))
		}
		cfg.OutputPaths = append(cfg.OutputPaths, o.logFile)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, o.logFile)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(o.level)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}
	cfg.Level = level

	cfg.InitialFields = map[string]any{}
	for _, f := range o.fixed {
		cfg.InitialFields[f.Key] = f.Value
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return &leveled{logger: &logger{l: l}, level: level}
}

// Zap exposes the underlying logger so it can be installed with zap.ReplaceGlobals.
func Zap(l Logger) *zap.Logger {
	if z, ok := l.(*leveled); ok {
		return z.l
	}
	return zap.NewNop()
}

func (z *leveled) SetLevel(level string) error {
	return z.level.UnmarshalText([]byte(level))
}

func (z *logger) With(fields ...observability.Field) observability.Logger {
	if len(fields) == 0 {
		return &logger{l: z.l}
	}
	return &logger{l: z.l.With(toZapFields(fields)...)}
}

func (z *logger) Debug(msg string, fields ...observability.Field) {
	z.l.Debug(msg, toZapFields(fields)...)
}
func (z *logger) Info(msg string, fields ...observability.Field) {
	z.l.Info(msg, toZapFields(fields)...)
}
func (z *logger) Warn(msg string, fields ...observability.Field) {
	z.l.Warn(msg, toZapFields(fields)...)
}
func (z *logger) Error(msg string, fields ...observability.Field) {
	z.l.Error(msg, toZapFields(fields)...)
}

// Sync flushes any buffered log entries. Safe to call on shutdown.
func (z *logger) Sync() error {
	return z.l.Sync()
}

func toZapFields(fs []observability.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fs))
	for _, f := range fs {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func ensureLogFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		f, createErr := os.OpenFile(path, os.O_CREATE, 0o644)
		if createErr != nil {
			return createErr
		}
		_ = f.Close()
	}
	return nil
}
