// Package exec is the process boundary for every external command arbor runs.
// Production code uses RealExecutor; tests swap in a MockExecutor.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
)

// CommandExecutor runs an external command in dir and captures its output.
// A command that starts but exits non-zero returns *ExitError; any other
// error means the command could not be run at all.
type CommandExecutor interface {
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExitError reports a non-zero exit status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode extracts the exit status from an error returned by Run.
// It returns 0 for nil and -1 when the command never ran.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return -1
}

// RealExecutor runs commands with os/exec.
type RealExecutor struct{}

// NewRealExecutor returns an executor backed by os/exec.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Run executes name with args in dir, blocking until it exits.
func (r *RealExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var ee *osexec.ExitError
	if errors.As(err, &ee) {
		err = &ExitError{Code: ee.ExitCode()}
	}
	return stdout.Bytes(), stderr.Bytes(), err
}
