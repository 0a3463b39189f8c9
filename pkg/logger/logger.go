// Package logger provides logging implementations for mcprun
package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/modelctl/mcprun/pkg/interfaces"
)

var levelOrder = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// ConsoleLogger writes leveled, field-annotated lines to stderr or a file.
type ConsoleLogger struct {
	level  string
	out    *log.Logger
	fields map[string]interface{}
}

// NewConsoleLogger creates a logger writing to stderr at the given level
func NewConsoleLogger(level string) interfaces.Logger {
	return &ConsoleLogger{
		level: normalizeLevel(level),
		out:   log.New(os.Stderr, "", log.LstdFlags),
	}
}

// NewFileLogger creates a logger appending to the given file path,
// creating parent directories as needed.
func NewFileLogger(level, path string) (interfaces.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &ConsoleLogger{
		level: normalizeLevel(level),
		out:   log.New(f, "", log.LstdFlags),
	}, nil
}

// NewTestLogger creates a logger for testing
func NewTestLogger() interfaces.Logger {
	return &ConsoleLogger{
		level: "debug",
		out:   log.New(os.Stderr, "", 0),
	}
}

// NewLogger creates a new logger with default settings
func NewLogger() interfaces.Logger {
	return NewConsoleLogger("info")
}

func normalizeLevel(level string) string {
	if _, ok := levelOrder[level]; !ok {
		return "info"
	}
	return level
}

func (l *ConsoleLogger) enabled(level string) bool {
	return levelOrder[level] >= levelOrder[l.level]
}

// Debug logs debug level messages
func (l *ConsoleLogger) Debug(msg string, fields ...map[string]interface{}) {
	if l.enabled("debug") {
		l.write("DEBUG", msg, fields...)
	}
}

// Info logs info level messages
func (l *ConsoleLogger) Info(msg string, fields ...map[string]interface{}) {
	if l.enabled("info") {
		l.write("INFO", msg, fields...)
	}
}

// Warn logs warning level messages
func (l *ConsoleLogger) Warn(msg string, fields ...map[string]interface{}) {
	if l.enabled("warn") {
		l.write("WARN", msg, fields...)
	}
}

// Error logs error level messages
func (l *ConsoleLogger) Error(msg string, err error, fields ...map[string]interface{}) {
	var all []map[string]interface{}
	if err != nil {
		all = append(all, map[string]interface{}{"error": err.Error()})
	}
	all = append(all, fields...)
	l.write("ERROR", msg, all...)
}

// Fatal logs fatal level messages and exits
func (l *ConsoleLogger) Fatal(msg string, err error, fields ...map[string]interface{}) {
	l.Error(msg, err, fields...)
	os.Exit(1)
}

// WithFields returns a logger carrying additional base fields
func (l *ConsoleLogger) WithFields(fields map[string]interface{}) interfaces.Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ConsoleLogger{level: l.level, out: l.out, fields: merged}
}

func (l *ConsoleLogger) write(level, msg string, fields ...map[string]interface{}) {
	line := fmt.Sprintf("[%s] %s", level, msg)
	for k, v := range l.fields {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			line += fmt.Sprintf(" %s=%v", k, v)
		}
	}
	l.out.Println(line)
}

var _ interfaces.Logger = (*ConsoleLogger)(nil)
