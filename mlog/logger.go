// Package mlog provides the process-wide structured logger. Components
// take a *zap.Logger explicitly in their constructors; only the
// daemon/CLI entrypoint reaches for the global exposed here.
package mlog

import (
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls level, encoding, and destination of the global logger.
type Config struct {
	// Level is one of debug, info, warn, error. Default info.
	Level string `yaml:"level" mapstructure:"level"`
	// Format is "console" or "json". Default console.
	Format string `yaml:"format" mapstructure:"format"`
	// File is an output path. Empty means stderr.
	File string `yaml:"file" mapstructure:"file"`
}

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// L returns the current process-wide logger. Safe to call before
// SetLogger/NewLogger; returns a no-op logger until one is installed.
func L() *zap.Logger {
	return global.Load()
}

// SetLogger installs lg as the process-wide logger.
func SetLogger(lg *zap.Logger) {
	if lg == nil {
		lg = zap.NewNop()
	}
	global.Store(lg)
}

// NewLogger builds a *zap.Logger from cfg and installs it as the global
// logger via SetLogger, returning it for callers that also want to hold
// a typed reference.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", "console":
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("mlog: unknown log format %q", cfg.Format)
	}

	sink, err := openSink(cfg.File)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, sink, level)
	lg := zap.New(core, zap.AddCaller())
	SetLogger(lg)
	return lg, nil
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	if path == "" {
		return zapcore.Lock(os.Stderr), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mlog: open log file: %w", err)
	}
	return zapcore.Lock(f), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("mlog: unknown log level %q", level)
	}
}
