package common

import (
	"context"
	"fmt"
	"time"

	"github.com/sandeepkv93/credential-manager-go/internal/observability"
)

// Action is the body of a tool subcommand. It returns human-readable detail lines.
type Action func(ctx context.Context) ([]string, error)

// Interactive renders an Action for a terminal. The ui package provides the
// bubbletea implementation.
type Interactive func(title string, fn Action) ([]string, error)

// ExitError carries the process exit code a tool should terminate with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit %d: %v", e.Code, e.Err) }

func (e *ExitError) Unwrap() error { return e.Err }

type Runner struct {
	Tool        string
	CI          bool
	Timeout     time.Duration
	ExitCode    int
	Interactive Interactive
}

// Run executes fn in CI mode (JSON on stdout) or through the interactive UI,
// records tool metrics and wraps failures in an ExitError.
func (r Runner) Run(command string, fn Action) error {
	title := r.Tool + " " + command
	start := time.Now()

	var (
		details []string
		err     error
	)
	if r.CI || r.Interactive == nil {
		timeout := r.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		details, err = fn(ctx)
		cancel()
	} else {
		details, err = r.Interactive(title, fn)
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordToolCommandRun(context.Background(), r.Tool, command, outcome)
	observability.RecordToolCommandDuration(context.Background(), r.Tool, command, outcome, time.Since(start))

	if r.CI {
		PrintCIResult(err == nil, title, details, err)
	}
	if err != nil {
		code := r.ExitCode
		if code == 0 {
			code = 1
		}
		return &ExitError{Code: code, Err: err}
	}
	return nil
}
