package internal

// Leveled logger for the reader's structure-walk traces.

import (
	"fmt"
	"log"
	"os"
	"sync"
)

type LogLevel int

const (
	// error levels that should almost always be printed
	LevelFatal LogLevel = iota // unrecoverable inconsistency
	LevelError                 // error that does not need to stop execution

	// debugging levels, okay to disable
	LevelWarn // something may be wrong, but not necessarily an error
	LevelInfo // structure-walk traces, informational only

	// Production code by default only shows warnings and above.
	LogLevelDefault = LevelWarn

	// min, max levels for setting print level
	LevelMin = LevelFatal
	LevelMax = LevelInfo
)

var levelToPrefix = []string{
	"FATAL ",
	"ERROR ",
	"WARN ",
	"INFO ",
}

type Logger struct {
	lock     sync.Mutex
	logLevel LogLevel
	logger   *log.Logger
}

func NewLogger() *Logger {
	return &Logger{
		logLevel: LogLevelDefault,
		logger:   log.New(os.Stderr, "h5coro ", log.LstdFlags),
	}
}

func (l *Logger) LogLevel() LogLevel {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.logLevel
}

// SetLogLevel returns the old level.
func (l *Logger) SetLogLevel(level LogLevel) LogLevel {
	if level < LevelMin || level > LevelMax {
		panic("trying to set invalid log level")
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	old := l.logLevel
	l.logLevel = level
	return old
}

func (l *Logger) output(level LogLevel, s string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if level > l.logLevel {
		return
	}
	l.logger.Output(3, levelToPrefix[level]+s)
}

func (l *Logger) Info(v ...any)                 { l.output(LevelInfo, fmt.Sprintln(v...)) }
func (l *Logger) Infof(format string, v ...any) { l.output(LevelInfo, fmt.Sprintf(format, v...)) }

func (l *Logger) Warn(v ...any)                 { l.output(LevelWarn, fmt.Sprintln(v...)) }
func (l *Logger) Warnf(format string, v ...any) { l.output(LevelWarn, fmt.Sprintf(format, v...)) }

func (l *Logger) Error(v ...any)                 { l.output(LevelError, fmt.Sprintln(v...)) }
func (l *Logger) Errorf(format string, v ...any) { l.output(LevelError, fmt.Sprintf(format, v...)) }
