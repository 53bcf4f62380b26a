package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// shortTraceLen is how much of a trace ID the console shows
const shortTraceLen = 8

// consoleSink is shared by a ConsoleLogger and every logger derived from it
type consoleSink struct {
	mu     sync.Mutex
	writer io.Writer
	level  LogLevel
}

// ConsoleLogger writes human readable lines to a terminal
type ConsoleLogger struct {
	sink             *consoleSink
	traceID          string
	colorEnabled     bool
	timestampEnabled bool
	redactSensitive  bool
}

// ConsoleLoggerConfig contains configuration for console logger
type ConsoleLoggerConfig struct {
	Writer           io.Writer
	Level            LogLevel
	ColorEnabled     bool
	TimestampEnabled bool
	RedactSensitive  bool
}

// NewConsoleLogger creates a new console logger, writing to stderr by default
func NewConsoleLogger(config ConsoleLoggerConfig) *ConsoleLogger {
	if config.Writer == nil {
		config.Writer = os.Stderr
	}

	return &ConsoleLogger{
		sink:             &consoleSink{writer: config.Writer, level: config.Level},
		colorEnabled:     config.ColorEnabled,
		timestampEnabled: config.TimestampEnabled,
		redactSensitive:  config.RedactSensitive,
	}
}

func (l *ConsoleLogger) colored(sb *strings.Builder, color, text string) {
	if l.colorEnabled {
		sb.WriteString(color)
		sb.WriteString(text)
		sb.WriteString(colorReset)
		return
	}
	sb.WriteString(text)
}

func levelColor(level LogLevel) string {
	switch level {
	case DEBUG:
		return colorBlue
	case WARN:
		return colorYellow
	case ERROR:
		return colorRed
	default:
		return colorReset
	}
}

func (l *ConsoleLogger) formatMessage(level LogLevel, msg string, fields ...Field) string {
	var sb strings.Builder

	if l.timestampEnabled {
		l.colored(&sb, colorGray, time.Now().Format("2006-01-02 15:04:05"))
		sb.WriteString(" ")
	}

	l.colored(&sb, levelColor(level), fmt.Sprintf("%-5s", level.String()))
	sb.WriteString(" ")

	if l.traceID != "" {
		short := l.traceID
		if len(short) > shortTraceLen {
			short = short[:shortTraceLen]
		}
		l.colored(&sb, colorGray, "["+short+"]")
		sb.WriteString(" ")
	}

	if l.redactSensitive {
		msg = RedactSensitiveData(msg)
	}
	sb.WriteString(msg)

	for i, field := range fields {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		value := fmt.Sprintf("%v", field.Value)
		if l.redactSensitive {
			value = RedactSensitiveData(value)
		}
		sb.WriteString(field.Key)
		sb.WriteString("=")
		sb.WriteString(value)
	}

	return sb.String()
}

func (l *ConsoleLogger) log(level LogLevel, msg string, fields ...Field) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if level < l.sink.level {
		return
	}
	_, _ = fmt.Fprintln(l.sink.writer, l.formatMessage(level, msg, fields...))
}

func (l *ConsoleLogger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields...) }
func (l *ConsoleLogger) Info(msg string, fields ...Field)  { l.log(INFO, msg, fields...) }
func (l *ConsoleLogger) Warn(msg string, fields ...Field)  { l.log(WARN, msg, fields...) }
func (l *ConsoleLogger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields...) }

// WithTraceID returns a logger sharing this one's output, tagged with traceID
func (l *ConsoleLogger) WithTraceID(traceID string) Logger {
	derived := *l
	derived.traceID = traceID
	return &derived
}

// WithContext returns a logger tagged with the trace ID stored on ctx
func (l *ConsoleLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel sets the minimum level for this logger and its derivatives
func (l *ConsoleLogger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

func (l *ConsoleLogger) Close() error {
	return nil
}
