// Command translatectl is the operator-facing command-line client for
// a running translated daemon's admin HTTP surface.
//
// Usage:
//
//	translatectl [global flags] <command> [args...]
//
// Global flags:
//
//	-a, --addr     admin surface base URL (default: http://127.0.0.1:9191)
//	-t, --timeout  request timeout (default: 10s)
//
// Commands:
//
//	status                health check against the daemon
//	quota show <session>   show a session's quota/license state
//	breaker status          show the subprocess circuit breaker's state
//	pool stats              show the subprocess connection pool's stats
//
// Exit codes:
//
//	0: command succeeded
//	1: command failed (daemon unreachable, non-2xx response, etc.)
//	2: usage error
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
)

const defaultTimeout = 10 * time.Second

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "translatectl",
		Usage:   "operator CLI for the translated daemon's admin surface",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "admin surface base URL",
				Value:   "http://127.0.0.1:9191",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "request timeout",
				Value:   defaultTimeout,
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "status",
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Run(ctx, os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		if isCLIUsageError(err) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// exitError carries a pre-decided exit code for a command that has
// already printed its own output (e.g. "status" on an offline daemon).
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

func isCLIUsageError(err error) bool {
	var usageErr *usageError
	return errors.As(err, &usageErr)
}

// usageError marks an error as an argument/flag problem rather than a
// runtime failure, so run() can map it to exit code 2.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }
