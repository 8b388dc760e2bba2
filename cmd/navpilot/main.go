package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/navpilot/cmd"
	"github.com/xkilldash9x/navpilot/internal/observability"
)

const panicLogFile = "navpilot-panic.log"

// Function variables so tests can observe exits and file writes.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
			if errors.Is(err, context.Canceled) {
				osExit(0)
				return
			}
			osExit(1)
		}
		return
	}

	rt := cmd.NewRuntime(nil)
	if err := runShell(ctx, rt, newLinerPrompter(), os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		osExit(1)
	}
}

// handlePanic records a crash to panicLogFile and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	report := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(report), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to write panic log: %v\n%s\n", err, report)
		osExit(2)
		return
	}
	fmt.Fprintf(os.Stderr, "navpilot crashed: %v\nDetails logged to %s\n", r, panicLogFile)
	osExit(2)
}
