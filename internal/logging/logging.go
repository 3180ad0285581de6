// Package logging builds the service's zap logger: console output on
// stderr, plus JSON lines in a rotated file when a directory is given.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const fileName = "airline-scheduler.log"

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("%s: invalid log level", level)
	}
}

// New returns a logger at the given level. With dir set, entries are also
// written to dir/airline-scheduler.log, rotated at 64MB and kept 14 days.
func New(level, dir string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	cores := []zapcore.Core{console}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
		w := &lumberjack.Logger{
			Filename: filepath.Join(dir, fileName),
			MaxSize:  64, // MB
			MaxAge:   14,
			Compress: true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(w),
			lvl,
		))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	log.Info("logging started",
		zap.String("level", lvl.String()),
		zap.String("goos", runtime.GOOS),
		zap.String("goarch", runtime.GOARCH),
		zap.Int("num_cpu", runtime.NumCPU()),
	)
	return log, nil
}
