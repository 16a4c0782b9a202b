// Package logging builds the zap loggers used by the binaries.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type settings struct {
	outputs []string
	console bool
	fields  []zap.Field
}

// Option adjusts a logger built by New.
type Option func(*settings)

// WithOutputs replaces the default stdout sink with paths, in zap sink
// syntax ("stderr", a file path).
func WithOutputs(paths ...string) Option {
	return func(s *settings) { s.outputs = paths }
}

// WithConsole switches from JSON to the human readable console encoding.
func WithConsole() Option {
	return func(s *settings) { s.console = true }
}

// WithFields attaches fields to every entry, such as the component name.
func WithFields(fields ...zap.Field) Option {
	return func(s *settings) { s.fields = append(s.fields, fields...) }
}

// New builds a sampled production logger at level. An unknown level falls
// back to info.
func New(level string, opts ...Option) (*zap.Logger, error) {
	s := settings{outputs: []string{"stdout"}}
	for _, opt := range opts {
		opt(&s)
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.SecondsDurationEncoder

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig = enc
	cfg.OutputPaths = s.outputs
	if s.console {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(s.fields...), nil
}
