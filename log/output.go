package log

import (
	"fmt"
	"time"
)

func writeLine(line *logLine, duplicates uint64) {
	outputLock.Lock()
	defer outputLock.Unlock()

	fmt.Fprintln(output, formatLine(line, duplicates, useColor.IsSet()))
}

func writer() {
	defer shutdownWaitGroup.Done()

	var (
		lastLine   *logLine
		duplicates uint64
	)

	flush := func() {
		if lastLine != nil {
			writeLine(lastLine, duplicates)
			lastLine = nil
			duplicates = 0
		}
	}
	handle := func(line *logLine) {
		if lastLine != nil && line.Equal(lastLine) {
			duplicates++
			return
		}
		flush()
		lastLine = line
	}

	for {
		// wait until logs need to be processed
		select {
		case <-logsWaiting:
			logsWaitingFlag.UnSet()
		case <-forceEmptyingOfBuffer:
		case <-shutdownSignal:
			for {
				select {
				case line := <-logBuffer:
					handle(line)
				default:
					flush()
					writeLine(&logLine{
						msg:       "===== LOGGING STOPPED =====",
						level:     WarningLevel,
						timestamp: time.Now(),
					}, 0)
					return
				}
			}
		}

		// write all the logs!
	writeLoop:
		for {
			select {
			case line := <-logBuffer:
				handle(line)
			default:
				break writeLoop
			}
		}
		flush()
	}
}
