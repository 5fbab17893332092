package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// LogFilePrefix names the daily files written by AddFileSink.
const LogFilePrefix = "sftpush_log"

type Logger struct {
	encoder  *logfmt.Encoder
	output   io.Writer
	minLevel Level
	sinks    []io.Closer
	now      func() time.Time
	mu       sync.Mutex
}

func New(output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{
		encoder:  logfmt.NewEncoder(output),
		output:   output,
		minLevel: LevelInfo,
		now:      time.Now,
	}
}

func NewDefault() *Logger {
	return New(os.Stdout)
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return New(io.Discard)
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// AddFileSink tees every record into a daily log file inside dir.
func (l *Logger) AddFileSink(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	name := filepath.Join(dir, LogFilePrefix+l.now().Format("20060102")+".txt")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}

	l.output = io.MultiWriter(l.output, f)
	l.encoder = logfmt.NewEncoder(l.output)
	l.sinks = append(l.sinks, f)
	return name, nil
}

// Close releases file sinks opened by AddFileSink.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.sinks = nil
	return firstErr
}

func (l *Logger) log(level Level, msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	_ = l.encoder.EncodeKeyval("time", l.now().Format(time.RFC3339))
	_ = l.encoder.EncodeKeyval("level", level.String())
	_ = l.encoder.EncodeKeyval("msg", msg)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_ = l.encoder.EncodeKeyval(k, fields[k])
	}

	_ = l.encoder.EndRecord()
}

func (l *Logger) Debug(msg string, fields map[string]any) {
	l.log(LevelDebug, msg, fields)
}

func (l *Logger) Info(msg string, fields map[string]any) {
	l.log(LevelInfo, msg, fields)
}

func (l *Logger) Error(msg string, err error, fields map[string]any) {
	if err != nil {
		withErr := make(map[string]any, len(fields)+1)
		for k, v := range fields {
			withErr[k] = v
		}
		withErr["error"] = err.Error()
		fields = withErr
	}
	l.log(LevelError, msg, fields)
}

func (l *Logger) Warn(msg string, fields map[string]any) {
	l.log(LevelWarn, msg, fields)
}

func (l *Logger) Fatal(msg string, fields map[string]any) {
	l.log(LevelFatal, msg, fields)
	os.Exit(1)
}

var defaultLogger = NewDefault()

func Info(msg string, fields map[string]any) {
	defaultLogger.Info(msg, fields)
}

func Error(msg string, err error, fields map[string]any) {
	defaultLogger.Error(msg, err, fields)
}

func Warn(msg string, fields map[string]any) {
	defaultLogger.Warn(msg, fields)
}

func Fatal(msg string, fields map[string]any) {
	defaultLogger.Fatal(msg, fields)
}

func Fatalf(format string, args ...any) {
	defaultLogger.Fatal(fmt.Sprintf(format, args...), nil)
}
