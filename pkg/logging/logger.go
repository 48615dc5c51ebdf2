package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LevelTrace LogLevel = iota - 5
	LevelDebug LogLevel = LogLevel(slog.LevelDebug)
	LevelInfo  LogLevel = LogLevel(slog.LevelInfo)
	LevelWarn  LogLevel = LogLevel(slog.LevelWarn)
	LevelError LogLevel = LogLevel(slog.LevelError)
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level       LogLevel `json:"level"`
	Format      string   `json:"format"` // "json" or "text"
	Output      string   `json:"output"` // "stdout", "stderr", or file path
	EnableAsync bool     `json:"enable_async"`
	BufferSize  int      `json:"buffer_size"`
}

// DefaultLogConfig returns the configuration used when nothing is set.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       LevelInfo,
		Format:      "json",
		Output:      "stdout",
		EnableAsync: false,
		BufferSize:  1000,
	}
}

// ParseLevel maps a level name to a LogLevel. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
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

// Logger provides structured logging with context support
type Logger struct {
	config  LogConfig
	slogger *slog.Logger
	file    *os.File
	asyncCh chan entry
	wg      sync.WaitGroup
	once    sync.Once
}

type entry struct {
	ctx   context.Context
	level slog.Level
	msg   string
	attrs []slog.Attr
}

// NewLogger creates a new structured logger
func NewLogger(config LogConfig) (*Logger, error) {
	l := &Logger{config: config}

	var writer io.Writer
	switch config.Output {
	case "", "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(config.Output), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		writer = f
	}

	l.slogger = slog.New(newHandler(writer, config))

	if config.EnableAsync {
		size := config.BufferSize
		if size <= 0 {
			size = 1000
		}
		l.asyncCh = make(chan entry, size)
		l.wg.Add(1)
		go l.asyncWorker()
	}
	return l, nil
}

// New builds a synchronous logger writing to w. Useful for tests that
// want to inspect output.
func New(w io.Writer, config LogConfig) *Logger {
	config.EnableAsync = false
	return &Logger{config: config, slogger: slog.New(newHandler(w, config))}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return New(io.Discard, LogConfig{Level: LevelError, Format: "text"})
}

func newHandler(w io.Writer, config LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.Level(config.Level)}
	if config.Format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func (l *Logger) asyncWorker() {
	defer l.wg.Done()
	for e := range l.asyncCh {
		l.slogger.LogAttrs(e.ctx, e.level, e.msg, e.attrs...)
	}
}

// Close flushes pending async entries and closes the log file.
func (l *Logger) Close() error {
	var err error
	l.once.Do(func() {
		if l.asyncCh != nil {
			close(l.asyncCh)
			l.wg.Wait()
		}
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// Slog exposes the underlying slog logger for libraries that accept one.
func (l *Logger) Slog() *slog.Logger { return l.slogger }

// WithComponent returns a logger with component information
func (l *Logger) WithComponent(component string) *ComponentLogger {
	return &ComponentLogger{logger: l, component: component}
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(context.Background(), LevelDebug, msg, nil, fields)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.log(context.Background(), LevelInfo, msg, nil, fields)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(context.Background(), LevelWarn, msg, nil, fields)
}

func (l *Logger) Error(msg string, err error, fields ...Field) {
	l.log(context.Background(), LevelError, msg, err, fields)
}

// ComponentLogger tags every entry with a component name and pulls
// request/run/poi identifiers out of the context when present.
type ComponentLogger struct {
	logger    *Logger
	component string
}

func (cl *ComponentLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	cl.logger.log(ctx, LevelDebug, msg, nil, cl.with(fields))
}

func (cl *ComponentLogger) Info(ctx context.Context, msg string, fields ...Field) {
	cl.logger.log(ctx, LevelInfo, msg, nil, cl.with(fields))
}

func (cl *ComponentLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	cl.logger.log(ctx, LevelWarn, msg, nil, cl.with(fields))
}

func (cl *ComponentLogger) Error(ctx context.Context, msg string, err error, fields ...Field) {
	cl.logger.log(ctx, LevelError, msg, err, cl.with(fields))
}

func (cl *ComponentLogger) with(fields []Field) []Field {
	return append(fields, String("component", cl.component))
}

func (l *Logger) log(ctx context.Context, level LogLevel, msg string, err error, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.slogger.Enabled(ctx, slog.Level(level)) {
		return
	}

	attrs := make([]slog.Attr, 0, len(fields)+5)
	if id, ok := RequestIDFrom(ctx); ok {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if id, ok := RunIDFrom(ctx); ok {
		attrs = append(attrs, slog.Int64("run_id", id))
	}
	if id, ok := POIIDFrom(ctx); ok {
		attrs = append(attrs, slog.Int64("poi_id", id))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if level >= LevelWarn {
		if _, file, line, ok := runtime.Caller(2); ok {
			attrs = append(attrs, slog.String("caller", fmt.Sprintf("%s:%d", filepath.Base(file), line)))
		}
	}
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}

	e := entry{ctx: ctx, level: slog.Level(level), msg: msg, attrs: attrs}
	if l.asyncCh != nil {
		select {
		case l.asyncCh <- e:
			return
		default:
			// Buffer full, write synchronously.
		}
	}
	l.slogger.LogAttrs(e.ctx, e.level, e.msg, e.attrs...)
}

// Field represents a structured log field
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }
func Time(key string, value time.Time) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}
