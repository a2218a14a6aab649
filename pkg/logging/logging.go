// Package logging builds the zap loggers used by the client and the CLI.
//
// Besides the usual stderr output, a logger can tee every event into an
// append-only file (one JSON line per event). The file acts as the error log
// of the application; when it cannot be opened the logger still works and
// only writes to stderr.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// File is the path of the append-only event log. Empty disables it.
	File  string
	Debug bool
}

// New creates a production logger according to opts.
func New(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.Lock(os.Stderr), level),
	}

	var sinkErr error
	if opts.File != "" {
		sink, err := openSink(opts.File)
		if err != nil {
			sinkErr = err
		} else {
			// The event log keeps warnings and errors only.
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, zapcore.WarnLevel))
		}
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	if sinkErr != nil {
		logger.Warn("Failed to open error log, logging to stderr only",
			zap.String("path", opts.File),
			zap.Error(sinkErr))
	}

	return logger
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return zapcore.Lock(zapcore.AddSync(f)), nil
}
