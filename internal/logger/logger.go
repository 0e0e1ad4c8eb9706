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
)

// LogLevel defines log level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// filePrefix names the rotated log files: rollmate-YYYY-MM-DD.log
const filePrefix = "rollmate-"

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config value ("debug", "info", ...) to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", s)
	}
}

// Logger is a levelled logger with daily file rotation.
// A Logger with an empty log directory writes to the console only.
type Logger struct {
	mu          sync.Mutex
	level       LogLevel
	logDir      string
	maxDays     int
	currentFile *os.File
	currentDate string
	console     io.Writer
}

// Config logger configuration
type Config struct {
	LogDir     string   // Log directory; empty disables file output
	Level      LogLevel // Log level
	MaxDays    int      // Max days to keep logs
	ConsoleOut bool     // Echo to stderr as well
}

// NewLogger creates a new logger instance
func NewLogger(cfg Config) (*Logger, error) {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 7
	}

	l := &Logger{
		level:   cfg.Level,
		logDir:  cfg.LogDir,
		maxDays: cfg.MaxDays,
	}
	// stdout may carry MCP stdio frames, so console echo goes to stderr.
	if cfg.ConsoleOut {
		l.console = os.Stderr
	}

	if l.logDir == "" {
		return l, nil
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if err := l.rotateIfNeeded(); err != nil {
		return nil, err
	}

	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{level: ERROR + 1}
}

// With returns a logger that prefixes every line with the component name.
// The returned logger shares the underlying file with its parent.
func (l *Logger) With(component string) *Scoped {
	return &Scoped{parent: l, component: component}
}

// rotateIfNeeded checks if log rotation is needed and performs it
func (l *Logger) rotateIfNeeded() error {
	if l.logDir == "" {
		return nil
	}
	today := time.Now().Format("2006-01-02")
	if l.currentDate == today && l.currentFile != nil {
		return nil
	}

	if l.currentFile != nil {
		l.currentFile.Close()
	}

	filename := filepath.Join(l.logDir, fmt.Sprintf("%s%s.log", filePrefix, today))
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.currentFile = f
	l.currentDate = today

	go l.cleanOldLogs()

	return nil
}

// cleanOldLogs removes log files older than maxDays
func (l *Logger) cleanOldLogs() {
	files, err := filepath.Glob(filepath.Join(l.logDir, filePrefix+"*.log"))
	if err != nil {
		return
	}

	if len(files) <= l.maxDays {
		return
	}

	// Names sort by date
	sort.Strings(files)

	for i := 0; i < len(files)-l.maxDays; i++ {
		os.Remove(files[i])
	}
}

func (l *Logger) log(level LogLevel, component, format string, args ...interface{}) {
	if l == nil || level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(); err != nil {
		fmt.Fprintf(os.Stderr, "Logger rotation error: %v\n", err)
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	var logLine string
	if component != "" {
		logLine = fmt.Sprintf("[%s] [%s] [%s] %s\n", timestamp, level.String(), component, message)
	} else {
		logLine = fmt.Sprintf("[%s] [%s] %s\n", timestamp, level.String(), message)
	}

	if l.currentFile != nil {
		l.currentFile.WriteString(logLine)
	}
	if l.console != nil {
		io.WriteString(l.console, logLine)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, "", format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, "", format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, "", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, "", format, args...)
}

// Close closes the logger
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.currentFile != nil {
		err := l.currentFile.Close()
		l.currentFile = nil
		return err
	}
	return nil
}

// GetWriter returns an io.Writer for the logger at the specified level
func (l *Logger) GetWriter(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.logger.log(w.level, "", "%s", msg)
	}
	return len(p), nil
}

// Scoped is a Logger bound to a component name.
type Scoped struct {
	parent    *Logger
	component string
}

// Debug logs a debug message
func (s *Scoped) Debug(format string, args ...interface{}) {
	s.parent.log(DEBUG, s.component, format, args...)
}

// Info logs an info message
func (s *Scoped) Info(format string, args ...interface{}) {
	s.parent.log(INFO, s.component, format, args...)
}

// Warn logs a warning message
func (s *Scoped) Warn(format string, args ...interface{}) {
	s.parent.log(WARN, s.component, format, args...)
}

// Error logs an error message
func (s *Scoped) Error(format string, args ...interface{}) {
	s.parent.log(ERROR, s.component, format, args...)
}
