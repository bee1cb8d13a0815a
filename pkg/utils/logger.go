// Package utils provides shared logging setup.
package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a zap logger for long-running processes. When debug is true, uses
// development config (human-readable, debug level); otherwise uses production config (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewCLILogger returns a console logger on stderr for one-shot commands, keeping stdout
// free for results. Without debug only warnings and errors are shown.
func NewCLILogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = ""
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		cfg.Development = false
		cfg.EncoderConfig.CallerKey = ""
	}
	return cfg.Build()
}
