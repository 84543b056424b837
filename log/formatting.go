package log

import (
	"fmt"
	"strings"
)

const (
	timeFormat = "060102 15:04:05.000"
	maxFileLen = 10
	maxCount   = 999
	rightArrow = "▶"
)

// lineCounter numbers written lines from 1 to maxCount. Only used while
// holding outputLock.
var lineCounter uint16

func (s Severity) String() string {
	switch s {
	case TraceLevel:
		return "TRAC"
	case DebugLevel:
		return "DEBU"
	case InfoLevel:
		return "INFO"
	case WarningLevel:
		return "WARN"
	case ErrorLevel:
		return "ERRO"
	case CriticalLevel:
		return "CRIT"
	default:
		return "NONE"
	}
}

// formatLine formats a log line as:
// 240301 12:00:00.000 ase/store:042 ▶ INFO 001 [2x] message.
func formatLine(line *logLine, duplicates uint64, useColor bool) string {
	lineCounter++
	if lineCounter > maxCount {
		lineCounter = 1
	}

	var b strings.Builder
	if useColor {
		b.WriteString(line.level.color())
	}
	b.WriteString(line.timestamp.Format(timeFormat))
	if line.line == 0 {
		b.WriteString(" ?")
	} else {
		file := line.file
		if len(file) > maxFileLen {
			file = file[len(file)-maxFileLen:]
		}
		fmt.Fprintf(&b, " %s:%03d", file, line.line)
	}
	fmt.Fprintf(&b, " %s %s %03d", rightArrow, line.level, lineCounter)
	if duplicates > 0 {
		fmt.Fprintf(&b, " [%dx]", duplicates+1)
	}
	if useColor {
		b.WriteString(endColor())
	}
	b.WriteByte(' ')
	b.WriteString(line.msg)
	return b.String()
}
