package log

import (
	"fmt"
	"strings"
)

// Logger adapts the package level logging functions to libraries that
// expect a logger object, such as storage engines.
type Logger struct {
	prefix string
}

// NewLogger returns a Logger that prefixes every message with the given
// prefix.
func NewLogger(prefix string) *Logger {
	if prefix != "" && !strings.HasSuffix(prefix, " ") {
		prefix += " "
	}
	return &Logger{prefix: prefix}
}

func (l *Logger) format(format string, things ...interface{}) string {
	return l.prefix + strings.TrimSpace(fmt.Sprintf(format, things...))
}

// Errorf logs with ErrorLevel.
func (l *Logger) Errorf(format string, things ...interface{}) {
	if fastcheck(ErrorLevel) {
		log(ErrorLevel, l.format(format, things...))
	}
}

// Warningf logs with WarningLevel.
func (l *Logger) Warningf(format string, things ...interface{}) {
	if fastcheck(WarningLevel) {
		log(WarningLevel, l.format(format, things...))
	}
}

// Infof logs with InfoLevel.
func (l *Logger) Infof(format string, things ...interface{}) {
	if fastcheck(InfoLevel) {
		log(InfoLevel, l.format(format, things...))
	}
}

// Debugf logs with DebugLevel.
func (l *Logger) Debugf(format string, things ...interface{}) {
	if fastcheck(DebugLevel) {
		log(DebugLevel, l.format(format, things...))
	}
}
