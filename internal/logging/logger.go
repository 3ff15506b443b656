// Package logging provides leveled logging for the scheduler, plus a
// pluggable log/warn/panic hook trio (SPEC_FULL.md §3.1) that stands in for
// the host assertion machinery spec.md §7 requires fatal and transient
// conditions to go through.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Logger wraps stdlib log with level support, structured key=value context,
// and an optional JSON rendering.
type Logger struct {
	logger  *log.Logger
	level   LogLevel
	format  string // "text" or "json"
	noColor bool
	mu      sync.Mutex
	fields  []any // flattened key, value, key, value...
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logging configuration
type Config struct {
	Level   LogLevel
	Format  string // "text" (default) or "json"
	Output  io.Writer
	Sync    bool // unused beyond documenting intent: this logger is always synchronous
	NoColor bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// NewLogger creates a new logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}
	return &Logger{
		logger:  log.New(output, "", log.LstdFlags),
		level:   config.Level,
		format:  format,
		noColor: config.NoColor,
	}
}

// Default returns the default logger, creating it if necessary
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// with returns a child logger carrying key appended to its context. The
// parent's fields slice is never mutated so sibling With* calls don't see
// each other's additions.
func (l *Logger) with(key string, value any) *Logger {
	child := &Logger{
		logger:  l.logger,
		level:   l.level,
		format:  l.format,
		noColor: l.noColor,
		fields:  append(append([]any{}, l.fields...), key, value),
	}
	return child
}

// WithClass annotates log lines with the scheduler class a callback belongs
// to (spec.md §3 Class).
func (l *Logger) WithClass(class fmt.Stringer) *Logger { return l.with("class", class) }

// WithDevice annotates log lines with the waitable (fd/handle/socket) a
// DEVICE entry refers to.
func (l *Logger) WithDevice(waitable int64) *Logger { return l.with("device_id", waitable) }

// WithQueue annotates log lines with a slave-thunk slot index (spec.md §4.7).
func (l *Logger) WithQueue(slot int) *Logger { return l.with("queue_id", slot) }

// WithRequest annotates log lines with a registration tag and operation
// name, used by register/remove call sites.
func (l *Logger) WithRequest(tag int64, op string) *Logger {
	return l.with("op", op).with("tag", tag)
}

// WithError annotates log lines with an error value.
func (l *Logger) WithError(err error) *Logger { return l.with("error", err) }

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return " " + b.String()
}

func (l *Logger) log(level LogLevel, prefix, msg string, args ...any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	all := append(append([]any{}, l.fields...), args...)
	if l.format == "json" {
		l.logger.Print(toJSONLine(prefix, msg, all))
		return
	}
	l.logger.Printf("%s %s%s", prefix, msg, formatArgs(all))
}

func toJSONLine(prefix, msg string, args []any) string {
	var b strings.Builder
	b.WriteByte('{')
	fmt.Fprintf(&b, "%q:%q,%q:%q", "level", strings.Trim(prefix, "[]"), "msg", msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, `,%q:%q`, fmt.Sprint(args[i]), fmt.Sprint(args[i+1]))
		}
	}
	b.WriteByte('}')
	return b.String()
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, "[INFO]", msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, "[WARN]", msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, "[ERROR]", msg, args...)
}

// Printf-style logging
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO]", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN]", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR]", fmt.Sprintf(format, args...))
}

// Printf for compatibility
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// Hooks is the pluggable log/warn/panic trio spec.md §7 calls "the host
// assertion/warning machinery". Panic must not return: callers rely on it
// to stop execution for programmer-error conditions.
type Hooks struct {
	Log   func(format string, args ...any)
	Warn  func(format string, args ...any)
	Panic func(format string, args ...any)
}

var (
	hooksMu     sync.RWMutex
	activeHooks = defaultHooks()
)

func defaultHooks() Hooks {
	return Hooks{
		Log:   func(format string, args ...any) { Default().Infof(format, args...) },
		Warn:  func(format string, args ...any) { Default().Warnf(format, args...) },
		Panic: func(format string, args ...any) { log.Panicf(format, args...) },
	}
}

// SetHooks installs h as the active trio, filling any nil field with the
// default behavior. Intended to be called once during init, per
// SPEC_FULL.md §3.1.
func SetHooks(h Hooks) {
	d := defaultHooks()
	if h.Log == nil {
		h.Log = d.Log
	}
	if h.Warn == nil {
		h.Warn = d.Warn
	}
	if h.Panic == nil {
		h.Panic = d.Panic
	}
	hooksMu.Lock()
	activeHooks = h
	hooksMu.Unlock()
}

// ResetHooks restores the default trio, primarily for test isolation.
func ResetHooks() {
	hooksMu.Lock()
	activeHooks = defaultHooks()
	hooksMu.Unlock()
}

// LogHook, WarnHook and PanicHook invoke the currently installed trio.
func LogHook(format string, args ...any) {
	hooksMu.RLock()
	h := activeHooks.Log
	hooksMu.RUnlock()
	h(format, args...)
}

func WarnHook(format string, args ...any) {
	hooksMu.RLock()
	h := activeHooks.Warn
	hooksMu.RUnlock()
	h(format, args...)
}

func PanicHook(format string, args ...any) {
	hooksMu.RLock()
	h := activeHooks.Panic
	hooksMu.RUnlock()
	h(format, args...)
}
