package log

import "sync/atomic"

var (
	warnLogLines     uint64
	errLogLines      uint64
	criticalLogLines uint64
)

func countLine(level Severity) {
	switch level {
	case WarningLevel:
		atomic.AddUint64(&warnLogLines, 1)
	case ErrorLevel:
		atomic.AddUint64(&errLogLines, 1)
	case CriticalLevel:
		atomic.AddUint64(&criticalLogLines, 1)
	}
}

// TotalWarningLogLines returns the total amount of warning log lines since
// start of the program.
func TotalWarningLogLines() uint64 {
	return atomic.LoadUint64(&warnLogLines)
}

// TotalErrorLogLines returns the total amount of error log lines since start
// of the program.
func TotalErrorLogLines() uint64 {
	return atomic.LoadUint64(&errLogLines)
}

// TotalCriticalLogLines returns the total amount of critical log lines since
// start of the program.
func TotalCriticalLogLines() uint64 {
	return atomic.LoadUint64(&criticalLogLines)
}
