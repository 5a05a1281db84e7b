package logging

// Leveled logging on top of zerolog.

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel int32

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelSilent:
		return "silent"
	case LogLevelError:
		return "error"
	case LogLevelInfo:
		return "info"
	case LogLevelVerbose:
		return "verbose"
	case LogLevelDebug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// ParseLevel maps a level name to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "silent", "off", "none":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// core is shared by a logger and every child derived from it.
type core struct {
	level atomic.Int32
	file  *os.File
}

// Logger provides leveled logging. A nil *Logger discards everything.
type Logger struct {
	core *core
	zl   zerolog.Logger
}

// NewLogger creates a logger writing a console format to stderr and, when
// logFile is set, JSON lines to that file.
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if logFile == "" {
		return newLogger(level, console, nil), nil
	}
	file, err := os.Create(logFile)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	return newLogger(level, zerolog.MultiLevelWriter(console, file), file), nil
}

// NewLoggerWithWriter creates a logger emitting JSON lines to w.
func NewLoggerWithWriter(level LogLevel, w io.Writer) *Logger {
	return newLogger(level, w, nil)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return newLogger(LogLevelSilent, io.Discard, nil)
}

func newLogger(level LogLevel, w io.Writer, file *os.File) *Logger {
	c := &core{file: file}
	c.level.Store(int32(level))
	return &Logger{
		core: c,
		zl:   zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger(),
	}
}

// With returns a child logger tagging every line with component. The child
// shares the parent's level and outputs.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{core: l.core, zl: l.zl.With().Str("component", component).Logger()}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.core.file == nil {
		return nil
	}
	return l.core.file.Close()
}

// Error logs an error message
func (l *Logger) Error(format string, v ...any) {
	l.emit(LogLevelError, format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...any) {
	l.emit(LogLevelInfo, format, v...)
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...any) {
	l.emit(LogLevelVerbose, format, v...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...any) {
	l.emit(LogLevelDebug, format, v...)
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level LogLevel) bool {
	return l != nil && level != LogLevelSilent && LogLevel(l.core.level.Load()) >= level
}

func (l *Logger) emit(level LogLevel, format string, v ...any) {
	if !l.Enabled(level) {
		return
	}
	l.event(level).Msgf(format, v...)
}

// event maps the four levels onto zerolog. Verbose and debug both become
// zerolog debug; filtering happens on LogLevel before an event is built.
func (l *Logger) event(level LogLevel) *zerolog.Event {
	switch level {
	case LogLevelError:
		return l.zl.Error()
	case LogLevelInfo:
		return l.zl.Info()
	default:
		return l.zl.Debug()
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	if l == nil {
		return
	}
	l.core.level.Store(int32(level))
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	if l == nil {
		return LogLevelSilent
	}
	return LogLevel(l.core.level.Load())
}

// LogOperation logs one request/reply exchange. Successes are verbose,
// failures are info.
func (l *Logger) LogOperation(operation, target, service string, success bool, rttMs float64, status uint8, err error) {
	level := LogLevelVerbose
	outcome := "SUCCESS"
	if !success {
		level = LogLevelInfo
		outcome = "FAILED"
	}
	if !l.Enabled(level) {
		return
	}
	ev := l.event(level).
		Str("outcome", outcome).
		Str("operation", operation).
		Str("target", target).
		Str("service", service).
		Str("status", fmt.Sprintf("0x%02X", status)).
		Float64("rtt_ms", rttMs)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msgf("%s %s on %s (RTT: %.3fms)", outcome, operation, target, rttMs)
}

// LogHex logs a hex dump at debug level.
func (l *Logger) LogHex(label string, data []byte) {
	if !l.Enabled(LogLevelDebug) {
		return
	}
	l.event(LogLevelDebug).Int("len", len(data)).Msgf("%s: % x", label, data)
}
