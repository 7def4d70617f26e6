// Package logging wraps zap with log rotation and secret redaction for sdprobe.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger and redacts tokens before anything reaches a sink.
//
// Composes:
//   - FileWriter (rotation via lumberjack)
//   - MultiCore (tee to console and file)
//   - SensitiveFilter (token redaction)
//
// Example:
//
//	logger, err := NewLoggerWithOptions(Options{
//	    Development: true,
//	    FilePath:    "sdprobe.log",
//	    File:        DefaultFileWriterConfig(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("pipeline loaded", zap.String("model", "SD-Turbo"))
type Logger struct {
	zap         *zap.Logger
	logFilePath string
}

// Options configures NewLoggerWithOptions. Zero values select defaults.
type Options struct {
	// Development selects the colored console encoder and debug level.
	Development bool

	// Level overrides the mode's default level when non-nil.
	Level *zapcore.Level

	// FilePath is the rotated log file. Empty disables file output.
	FilePath string

	// File configures rotation for FilePath.
	File FileWriterConfig

	// Console receives console output. Defaults to os.Stderr so that
	// command output on stdout stays clean.
	Console io.Writer
}

// NewLoggerWithOptions builds a Logger writing to the console and to
// opts.FilePath.
//
// Development mode logs at debug level with a colored console encoder;
// production logs JSON at info level. The file is always JSON.
func NewLoggerWithOptions(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Development {
		level = zapcore.DebugLevel
	}
	if opts.Level != nil {
		level = *opts.Level
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var fileWriter zapcore.WriteSyncer
	if opts.FilePath != "" {
		if err := ensureLogDir(opts.FilePath); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		fileWriter = NewFileWriterWithConfig(opts.FilePath, opts.File)
	}

	core := NewMultiCore(level, zapcore.AddSync(console), fileWriter, opts.Development)
	zapLogger := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1), // skip this wrapper
	)

	return &Logger{zap: zapLogger, logFilePath: opts.FilePath}, nil
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Sync flushes buffered entries. Call it before exiting.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs at DebugLevel.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, l.redactFields(fields)...)
}

// Info logs at InfoLevel.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, l.redactFields(fields)...)
}

// Warn logs at WarnLevel.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, l.redactFields(fields)...)
}

// Error logs at ErrorLevel.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, l.redactFields(fields)...)
}

// With creates a child logger that adds fields to every entry.
//
// Example:
//
//	runLogger := logger.With(zap.String("run_id", id))
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(l.redactFields(fields)...), logFilePath: l.logFilePath}
}

// Named adds a sub-logger name, e.g. "remote" or "reprstore".
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name), logFilePath: l.logFilePath}
}

// LogFilePath returns the log file path, or "" when file output is off.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}

func (l *Logger) redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}
	result := make([]zap.Field, len(fields))
	for i, field := range fields {
		result[i] = redactField(field)
	}
	return result
}

func redactField(field zap.Field) zap.Field {
	if field.Type == zapcore.StringType {
		if IsSensitiveField(field.Key) || ContainsSensitiveData(field.String) {
			return zap.String(field.Key, RedactField(field.Key, field.String))
		}
		return field
	}
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}
	return field
}
