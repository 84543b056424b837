// Package run runs a long-running function until the process is
// interrupted.
package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/ainotebook/notebase/log"
)

var (
	// ForceExitAfter is the number of additional signals that force an exit
	// during shutdown.
	ForceExitAfter = 5

	// ShutdownTimeout is how long the shutdown may take before the process
	// exits forcefully.
	ShutdownTimeout = 3 * time.Minute

	sigUSR1 = syscall.Signal(0xa) // dummy for windows
)

// Run calls fn and cancels its context when the process receives an
// interrupt. SIGUSR1 prints the goroutine stacks instead.
func Run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(
		signalCh,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		sigUSR1,
	)
	defer signal.Stop(signalCh)

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	for {
		select {
		case err := <-done:
			return err

		case sig := <-signalCh:
			// only print and continue to wait if SIGUSR1
			if sig == sigUSR1 {
				_ = pprof.Lookup("goroutine").WriteTo(os.Stderr, 1)
				continue
			}

			fmt.Fprintln(os.Stderr, " <INTERRUPT>")
			log.Warning("main: program was interrupted, shutting down")
			cancel()
			return waitForShutdown(signalCh, done)
		}
	}
}

func waitForShutdown(signalCh chan os.Signal, done chan error) error {
	forceCnt := ForceExitAfter
	timeout := time.NewTimer(ShutdownTimeout)
	defer timeout.Stop()

	for {
		select {
		case err := <-done:
			return err

		case <-signalCh:
			forceCnt--
			if forceCnt > 0 {
				fmt.Fprintf(os.Stderr, " <INTERRUPT> again, but already shutting down. %d more to force.\n", forceCnt)
				continue
			}
			fmt.Fprintln(os.Stderr, "===== FORCED EXIT =====")
			printStackTo(os.Stderr)
			os.Exit(1)

		case <-timeout.C:
			fmt.Fprintln(os.Stderr, "===== TAKING TOO LONG FOR SHUTDOWN =====")
			printStackTo(os.Stderr)
			os.Exit(1)
		}
	}
}

func printStackTo(writer io.Writer) {
	fmt.Fprintln(writer, "=== PRINTING TRACES ===")
	fmt.Fprintln(writer, "=== GOROUTINES ===")
	_ = pprof.Lookup("goroutine").WriteTo(writer, 1)
	fmt.Fprintln(writer, "=== BLOCKING ===")
	_ = pprof.Lookup("block").WriteTo(writer, 1)
	fmt.Fprintln(writer, "=== MUTEXES ===")
	_ = pprof.Lookup("mutex").WriteTo(writer, 1)
	fmt.Fprintln(writer, "=== END TRACES ===")
}
