package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger defines the interface for logging
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Time(msg string, args ...any)

	// WithFields returns a logger that always attaches the given key/value
	// pairs, used to carry job id / stage / database / key through a job.
	WithFields(fields map[string]interface{}) Logger

	// Progress logging for operations
	StartOperation(name string) OperationLogger
}

// OperationLogger tracks timing for operations
type OperationLogger interface {
	Update(msg string, args ...any)
	Complete(msg string, args ...any)
	Fail(msg string, args ...any)
}

// logger implements Logger interface using logrus
type logger struct {
	entry *logrus.Entry
}

// operationLogger tracks a single operation
type operationLogger struct {
	name      string
	startTime time.Time
	parent    *logger
}

// New creates a new logger
func New(level, format string) Logger {
	l := logrus.New()
	l.SetLevel(parseLevel(level))
	l.SetFormatter(buildFormatter(format))
	l.SetOutput(os.Stdout)
	return &logger{entry: logrus.NewEntry(l)}
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func buildFormatter(format string) logrus.Formatter {
	if strings.ToLower(format) == "json" {
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339}
	}
	return &logrus.TextFormatter{FullTimestamp: true}
}

// fieldsFromArgs turns a flat Info("msg", "k1", v1, "k2", v2, ...) arg list
// into logrus.Fields.
func fieldsFromArgs(args []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		fields[key] = args[i+1]
	}
	return fields
}

func (l *logger) Debug(msg string, args ...any) { l.entry.WithFields(fieldsFromArgs(args)).Debug(msg) }
func (l *logger) Info(msg string, args ...any)  { l.entry.WithFields(fieldsFromArgs(args)).Info(msg) }
func (l *logger) Warn(msg string, args ...any)  { l.entry.WithFields(fieldsFromArgs(args)).Warn(msg) }
func (l *logger) Error(msg string, args ...any) { l.entry.WithFields(fieldsFromArgs(args)).Error(msg) }

func (l *logger) Time(msg string, args ...any) {
	l.entry.WithFields(fieldsFromArgs(args)).Info("[TIME] " + msg)
}

func (l *logger) WithFields(fields map[string]interface{}) Logger {
	return &logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *logger) StartOperation(name string) OperationLogger {
	return &operationLogger{
		name:      name,
		startTime: time.Now(),
		parent:    l,
	}
}

func (ol *operationLogger) Update(msg string, args ...any) {
	ol.parent.entry.WithFields(fieldsFromArgs(args)).
		WithField("elapsed", time.Since(ol.startTime).String()).
		Info(fmt.Sprintf("[%s] %s", ol.name, msg))
}

func (ol *operationLogger) Complete(msg string, args ...any) {
	ol.parent.entry.WithFields(fieldsFromArgs(args)).
		WithField("duration", time.Since(ol.startTime).String()).
		Info(fmt.Sprintf("[%s] completed: %s", ol.name, msg))
}

func (ol *operationLogger) Fail(msg string, args ...any) {
	ol.parent.entry.WithFields(fieldsFromArgs(args)).
		WithField("duration", time.Since(ol.startTime).String()).
		Error(fmt.Sprintf("[%s] failed: %s", ol.name, msg))
}

// FileLogger creates a logger that writes to both stdout and a file
func FileLogger(level, format, filename string) (Logger, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := logrus.New()
	l.SetLevel(parseLevel(level))
	l.SetFormatter(buildFormatter(format))
	l.SetOutput(io.MultiWriter(os.Stdout, file))
	return &logger{entry: logrus.NewEntry(l)}, nil
}
