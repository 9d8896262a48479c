package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	entry *logrus.Entry
	mu    sync.Mutex
	file  *os.File
}

var (
	instance *Logger
	once     sync.Once
)

// contextKey type for storing context values
type contextKey string

// RequestIDKey carries the per-request id set by the API middleware
const RequestIDKey contextKey = "request_id"

// GetLogger returns a singleton logger instance
func GetLogger() *Logger {
	once.Do(func() {
		instance = newLogger(os.Stdout)
	})
	return instance
}

// L is shorthand for GetLogger
func L() *Logger {
	return GetLogger()
}

func newLogger(out io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "02-01-06:15:04:05",
	})
	return &Logger{entry: logrus.NewEntry(base)}
}

// Configure applies level, format ("text" or "json") and an optional log file.
// The file is written in addition to stdout.
func (l *Logger) Configure(level, format, file string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	base := l.entry.Logger

	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		base.SetLevel(lvl)
	}

	switch strings.ToLower(format) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "02-01-06:15:04:05",
		})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		base.SetOutput(io.MultiWriter(os.Stdout, f))

		// previous file is no longer written to
		if l.file != nil {
			l.file.Close()
		}
		l.file = f
	}

	return nil
}

// Close releases the log file opened by Configure, if any
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.entry.Logger.SetOutput(os.Stdout)
	return err
}

// SetOutput redirects log output, mainly for tests
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.Logger.SetOutput(w)
}

// WithContext returns a logger that tags every entry with the request id in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	reqID, ok := ctx.Value(RequestIDKey).(string)
	if !ok || reqID == "" {
		return l
	}
	return &Logger{entry: l.entry.WithField(string(RequestIDKey), reqID)}
}

func (l *Logger) fields(props []map[string]interface{}) *logrus.Entry {
	e := l.entry.WithField("caller", caller())
	if len(props) > 0 && props[0] != nil {
		e = e.WithFields(logrus.Fields(props[0]))
	}
	return e
}

// caller reports file:line of the code that called Info/Error/...
func caller() string {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func (l *Logger) Info(msg string, props ...map[string]interface{}) {
	l.fields(props).Info(msg)
}

func (l *Logger) Error(msg string, props ...map[string]interface{}) {
	l.fields(props).Error(msg)
}

func (l *Logger) Debug(msg string, props ...map[string]interface{}) {
	l.fields(props).Debug(msg)
}

func (l *Logger) Fatal(msg string, props ...map[string]interface{}) {
	l.fields(props).Fatal(msg)
}

// EnableDebug enables debug logging
func (l *Logger) EnableDebug() {
	l.entry.Logger.SetLevel(logrus.DebugLevel)
}
