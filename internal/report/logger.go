// Package report provides the leveled logger and the progress reporter that
// are passed explicitly into the collection and diff components.
package report

import (
	"fmt"
	"io"
	"log"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a level name to a Level; unknown names mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger writes leveled diagnostic lines.
type Logger struct {
	logger *log.Logger
	level  Level
}

// NewLogger creates a Logger writing to w at the given minimum level.
func NewLogger(w io.Writer, level Level) *Logger {
	return &Logger{logger: log.New(w, "", log.LstdFlags), level: level}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return &Logger{logger: log.New(io.Discard, "", 0), level: LevelError + 1}
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }

func (l *Logger) log(level Level, format string, args ...any) {
	if l == nil || level < l.level {
		return
	}
	l.logger.Printf("%s %s", level, fmt.Sprintf(format, args...))
}
