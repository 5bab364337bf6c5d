// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
func New(development bool, opts ...zap.Option) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build(opts...)
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// ExitHook terminates the process with Code once a fatal entry has been written.
type ExitHook struct {
	Code int
}

// OnWrite implements zapcore.CheckWriteHook.
func (h ExitHook) OnWrite(*zapcore.CheckedEntry, []zapcore.Field) {
	os.Exit(h.Code)
}

// WithFatalExitCode makes Fatal exit with code instead of 1, so a supervisor can tell
// configuration failures apart from crashes.
func WithFatalExitCode(code int) zap.Option {
	return zap.WithFatalHook(ExitHook{Code: code})
}
