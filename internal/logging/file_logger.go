package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileSink owns the open log file; derived loggers share it so rotation stays consistent
type fileSink struct {
	mu            sync.Mutex
	file          *os.File
	filePath      string
	level         LogLevel
	maxFileSize   int64
	currentSize   int64
	rotateEnabled bool
}

// FileLogger writes JSON lines (one LogEntry per line) with size based rotation
type FileLogger struct {
	sink            *fileSink
	traceID         string
	redactSensitive bool
}

// FileLoggerConfig contains configuration for file logger
type FileLoggerConfig struct {
	FilePath        string
	Level           LogLevel
	MaxFileSize     int64 // bytes, 0 disables rotation
	RotateEnabled   bool
	RedactSensitive bool
}

// NewFileLogger opens (or creates) the log file in append mode
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := openLogFile(config.FilePath)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &FileLogger{
		sink: &fileSink{
			file:          file,
			filePath:      config.FilePath,
			level:         config.Level,
			maxFileSize:   config.MaxFileSize,
			currentSize:   info.Size(),
			rotateEnabled: config.RotateEnabled && config.MaxFileSize > 0,
		},
		redactSensitive: config.RedactSensitive,
	}, nil
}

func openLogFile(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

func (l *FileLogger) log(level LogLevel, msg string, fields ...Field) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level || s.file == nil {
		return
	}

	if s.rotateEnabled && s.currentSize >= s.maxFileSize {
		if err := s.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate log file: %v\n", err)
			if s.file == nil {
				return
			}
		}
	}

	if l.redactSensitive {
		msg = RedactSensitiveData(msg)
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
		TraceID:   l.traceID,
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(fields))
		for _, field := range fields {
			value := field.Value
			if str, ok := value.(string); ok && l.redactSensitive {
				value = RedactSensitiveData(str)
			}
			if err, ok := value.(error); ok {
				value = err.Error()
			}
			entry.Fields[field.Key] = value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}

	n, err := s.file.Write(append(data, '\n'))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write log entry: %v\n", err)
		return
	}
	s.currentSize += int64(n)
}

// rotate renames the current file with a timestamp suffix and starts a new one
func (s *fileSink) rotate() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	rotatedPath := fmt.Sprintf("%s.%s", s.filePath, time.Now().UTC().Format("20060102-150405.000"))
	renameErr := os.Rename(s.filePath, rotatedPath)

	file, err := openLogFile(s.filePath)
	if err != nil {
		s.file = nil
		return err
	}
	s.file = file
	if renameErr != nil {
		return fmt.Errorf("failed to rename log file: %w", renameErr)
	}
	s.currentSize = 0
	return nil
}

func (l *FileLogger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields...) }
func (l *FileLogger) Info(msg string, fields ...Field)  { l.log(INFO, msg, fields...) }
func (l *FileLogger) Warn(msg string, fields ...Field)  { l.log(WARN, msg, fields...) }
func (l *FileLogger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields...) }

// WithTraceID returns a logger writing to the same file, tagged with traceID
func (l *FileLogger) WithTraceID(traceID string) Logger {
	return &FileLogger{sink: l.sink, traceID: traceID, redactSensitive: l.redactSensitive}
}

// WithContext returns a logger tagged with the trace ID stored on ctx
func (l *FileLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

func (l *FileLogger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// Close closes the log file; closing twice is a no-op
func (l *FileLogger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.file == nil {
		return nil
	}
	err := l.sink.file.Close()
	l.sink.file = nil
	return err
}
