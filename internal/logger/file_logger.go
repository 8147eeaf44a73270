package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a leveled, structured logger for guard components
type Logger struct {
	zl      zerolog.Logger
	logFile *os.File
	logDir  string
	name    string
	mu      *sync.Mutex
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelStatus  LogLevel = "STATUS"
)

// ParseLevel converts a config string into a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// New creates a logger writing JSON lines to w
func New(w io.Writer, level string) *Logger {
	zl := zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
	return &Logger{zl: zl, mu: &sync.Mutex{}}
}

// NewConsole creates a logger writing human readable lines to w
func NewConsole(w io.Writer, level string) *Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05"}
	return New(cw, level)
}

// NewFileLogger creates a logger that appends to <dir>/<name>_<date>.log and mirrors to stdout
func NewFileLogger(dir, name, level string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", name, timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	multi := zerolog.MultiLevelWriter(file, console)

	l := New(multi, level)
	l.logFile = file
	l.logDir = dir
	l.name = name

	l.zl.Info().Str("log_file", logPath).Msg("🚀 tradeguard session started")
	return l, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), mu: &sync.Mutex{}}
}

// With returns a child logger tagged with a component name
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{
		zl:      l.zl.With().Str("component", component).Logger(),
		logFile: l.logFile,
		logDir:  l.logDir,
		name:    l.name,
		mu:      l.mu,
	}
}

// Zerolog exposes the underlying zerolog logger for structured call sites
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}
	var ev *zerolog.Event
	switch level {
	case LogLevelDebug:
		ev = l.zl.Debug()
	case LogLevelWarning:
		ev = l.zl.Warn()
	case LogLevelError:
		ev = l.zl.Error()
	case LogLevelTrade, LogLevelStatus:
		ev = l.zl.Info().Str("kind", strings.ToLower(string(level)))
	default:
		ev = l.zl.Info()
	}
	ev.Msgf(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.Log(LogLevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs periodic status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// Critical logs an error-level entry flagged as critical
func (l *Logger) Critical(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.zl.Error().Bool("critical", true).Msgf(format, args...)
}

// LogError logs error with context
func (l *Logger) LogError(context string, err error) {
	if l == nil {
		return
	}
	l.zl.Error().Err(err).Msg(context)
}

// LogWarning logs warning with context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	l.Warning("%s", fmt.Sprintf(context+": "+message, args...))
}

// Close closes the log file
func (l *Logger) Close() error {
	if l == nil || l.logFile == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.zl.Info().Msg("🛑 tradeguard session ended")
	err := l.logFile.Close()
	l.logFile = nil
	return err
}

// GetLogPath returns the current log file path, empty for non-file loggers
func (l *Logger) GetLogPath() string {
	if l.logDir == "" {
		return ""
	}
	timestamp := time.Now().Format("2006-01-02")
	return filepath.Join(l.logDir, fmt.Sprintf("%s_%s.log", l.name, timestamp))
}
