// Package logger provides opinionated logging capabilities for reel
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option configures a logger created with New.
type Option func(*options)

type options struct {
	debug   bool
	json    bool
	writers []io.Writer
}

// WithDebug sets the log level to Debug when true, Info otherwise.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}

// WithJSON switches from the colorized console encoder to JSON lines.
func WithJSON(json bool) Option {
	return func(o *options) {
		o.json = json
	}
}

// WithWriters sets the output writers. Defaults to os.Stdout.
func WithWriters(w ...io.Writer) Option {
	return func(o *options) {
		o.writers = w
	}
}

func NewLogger(debug bool) *zap.Logger {
	return New(WithDebug(debug))
}

func NewLoggerWithWriters(debug bool, writers ...io.Writer) *zap.Logger {
	return New(WithDebug(debug), WithWriters(writers...))
}

func New(opts ...Option) *zap.Logger {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if o.json {
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	// Set log level
	level := zap.InfoLevel
	if o.debug {
		level = zap.DebugLevel
	}

	writers := o.writers
	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, writer := range writers {
		syncers = append(syncers, zapcore.AddSync(writer))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)

	return zap.New(core, zap.AddCaller())
}

// Multi tees every entry to all of the given loggers' cores. The serve
// command uses it to write console output and a JSON log file at once.
func Multi(loggers ...*zap.Logger) *zap.Logger {
	cores := make([]zapcore.Core, 0, len(loggers))
	for _, l := range loggers {
		cores = append(cores, l.Core())
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// Nop returns a logger that discards everything. Tests use it.
func Nop() *zap.Logger {
	return zap.NewNop()
}
