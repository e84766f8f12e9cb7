// Package logging builds the process zap logger from config.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level, destination and encoding.
type Options struct {
	Level  string
	File   string
	Format string
	// Quiet discards output when no file is set, for full-screen prompts.
	Quiet bool
}

// New builds a logger. The returned close func flushes and releases the log
// file, if any.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.TimeKey = "time"

	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, nil, fmt.Errorf("invalid log format: %s", opts.Format)
	}

	var (
		sink    zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
		logFile *os.File
	)
	path := strings.TrimSpace(opts.File)
	switch {
	case path != "":
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		sink = zapcore.Lock(f)
	case opts.Quiet:
		return zap.NewNop(), func() error { return nil }, nil
	}

	logger := zap.New(zapcore.NewCore(enc, sink, level), zap.AddCaller())
	closeFn := func() error {
		_ = logger.Sync()
		if logFile != nil {
			return logFile.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}

// ParseLevel maps a config level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", level)
	}
}

// Pick returns override when set, else configured.
func Pick(configured, override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return configured
}
