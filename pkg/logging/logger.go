// Package logging is the process-wide logger: leveled, optionally JSON,
// written to the console and to one log file per day.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// DailyFileLayout names log files after the day the process started (yy-mm-dd.log)
const DailyFileLayout = "06-01-02"

const timestampLayout = "2006-01-02 15:04:05"

// Logger writes leveled messages with optional fields.
// Copies made by WithField share the writer and its lock.
type Logger struct {
	level      Level
	jsonFormat bool
	output     io.Writer
	fields     map[string]interface{}
	file       *os.File
	mu         *sync.Mutex
}

// New creates a logger writing to w
func New(w io.Writer, level Level, jsonFormat bool) *Logger {
	return &Logger{
		level:      level,
		jsonFormat: jsonFormat,
		output:     w,
		mu:         &sync.Mutex{},
	}
}

// Nop returns a logger that drops everything
func Nop() *Logger {
	return New(io.Discard, FATAL+1, false)
}

// NewFileLogger creates a logger that writes to <dir>/<yy-mm-dd>.log and to console.
// Falls back to the current directory if dir cannot be used; console defaults to stderr.
func NewFileLogger(dir string, console io.Writer, level Level, jsonFormat bool) (*Logger, error) {
	if dir == "" || !usableDir(dir) {
		dir = "."
	}
	if console == nil {
		console = os.Stderr
	}

	path := GetLogPath(dir, time.Now())
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	logger := New(io.MultiWriter(file, console), level, jsonFormat)
	logger.file = file
	logger.Debug("Logging to " + path)
	return logger, nil
}

// Path returns the log file path, or "" for console-only loggers
func (l *Logger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Enabled reports whether messages at level are written
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

// LogEntry is one line in JSON mode
type LogEntry struct {
	Timestamp string                 `json:"time"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	if !l.Enabled(level) {
		return
	}

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	var line string
	if l.jsonFormat {
		data, err := json.Marshal(LogEntry{
			Timestamp: time.Now().Format(time.RFC3339),
			Level:     level.String(),
			Message:   message,
			Fields:    merged,
		})
		if err != nil {
			line = fmt.Sprintf(`{"level":"ERROR","msg":"unencodable log entry: %v"}`, err)
		} else {
			line = string(data)
		}
	} else {
		line = fmt.Sprintf("%s [%s] %s%s", time.Now().Format(timestampLayout), level, message, formatFields(merged))
	}

	l.mu.Lock()
	fmt.Fprintln(l.output, line)
	l.mu.Unlock()
}

// formatFields renders fields as " k=v k=v", sorted by key
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, first(fields))
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, first(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, first(fields))
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, first(fields))
}

func first(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// WithField returns a copy that adds key=value to every message
func (l *Logger) WithField(key string, value interface{}) *Logger {
	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value

	child := *l
	child.fields = fields
	child.file = nil // only the root closes the file
	return &child
}

// ParseLevel parses a log level name, case-insensitively. Unknown names mean INFO.
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Close closes the log file if this logger opened one
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// usableDir creates dir if needed and checks a file can be created in it
func usableDir(dir string) bool {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".pgobserver-*")
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(f.Name())
	return true
}

// GetLogPath returns the daily log path inside dir for the given day
func GetLogPath(dir string, day time.Time) string {
	return filepath.Join(dir, day.Format(DailyFileLayout)+".log")
}
