package system

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents logging severity
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string onto a LogLevel. Unknown values fall back to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Options control where and how the global logger writes.
type Options struct {
	Dir    string
	Prefix string
	Level  LogLevel
	JSON   bool
}

// Logger provides file-based logging with daily rotation, mirrored to stdout
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	sugar  *zap.SugaredLogger
	opts   Options
	date   string
	noFile bool
}

// Global logger instance
var globalLogger *Logger

// InitLogger initializes the global logger
func InitLogger(opts Options) error {
	if opts.Dir == "" {
		opts.Dir = "./logs"
	}
	if opts.Prefix == "" {
		opts.Prefix = "cyberledger"
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{opts: opts}
	if err := l.rotateIfNeeded(); err != nil {
		return err
	}

	globalLogger = l

	return nil
}

// InitConsoleLogger initializes a stdout-only logger, used by tools and tests.
func InitConsoleLogger(level LogLevel) {
	l := &Logger{opts: Options{Level: level}, noFile: true}
	l.sugar = zap.New(l.consoleCore()).Sugar()
	globalLogger = l
}

func (l *Logger) encoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	if l.opts.JSON {
		return zapcore.NewJSONEncoder(cfg)
	}

	return zapcore.NewConsoleEncoder(cfg)
}

func (l *Logger) consoleCore() zapcore.Core {
	return zapcore.NewCore(l.encoder(), zapcore.Lock(os.Stdout), l.opts.Level.zapLevel())
}

// rotateIfNeeded checks if log rotation is needed (daily)
func (l *Logger) rotateIfNeeded() error {
	if l.noFile {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if l.date == today && l.file != nil {
		return nil
	}

	logPath := filepath.Join(l.opts.Dir, fmt.Sprintf("%s-%s.log", l.opts.Prefix, today))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if l.sugar != nil {
		_ = l.sugar.Sync()
	}
	if l.file != nil {
		l.file.Close()
	}

	fileCore := zapcore.NewCore(l.encoder(), zapcore.AddSync(file), l.opts.Level.zapLevel())

	l.file = file
	l.sugar = zap.New(zapcore.NewTee(l.consoleCore(), fileCore)).Sugar()
	l.date = today

	return nil
}

// Log writes a log entry
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		log.Printf("[%s] %s", level.String(), fmt.Sprintf(format, args...))
		return
	}

	_ = l.rotateIfNeeded()

	l.mu.Lock()
	sugar := l.sugar
	l.mu.Unlock()

	switch level {
	case LevelDebug:
		sugar.Debugf(format, args...)
	case LevelWarn:
		sugar.Warnf(format, args...)
	case LevelError:
		sugar.Errorf(format, args...)
	default:
		sugar.Infof(format, args...)
	}
}

// Package-level logging functions

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	globalLogger.Log(LevelDebug, format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	globalLogger.Log(LevelInfo, format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	globalLogger.Log(LevelWarn, format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	globalLogger.Log(LevelError, format, args...)
}

// Close flushes and closes the logger
func Close() {
	if globalLogger == nil {
		return
	}

	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	if globalLogger.sugar != nil {
		_ = globalLogger.sugar.Sync()
	}
	if globalLogger.file != nil {
		globalLogger.file.Close()
		globalLogger.file = nil
	}
}
