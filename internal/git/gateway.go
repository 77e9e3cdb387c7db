package git

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zhubert/arbor/internal/errors"
	pexec "github.com/zhubert/arbor/internal/exec"
	"github.com/zhubert/arbor/internal/logger"
)

// DefaultBinary is the version-control binary used when none is configured.
const DefaultBinary = "git"

// Result is the captured outcome of one command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether the command exited zero.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Gateway runs subcommands of a single version-control binary.
// Calls are synchronous and never retried.
type Gateway struct {
	executor pexec.CommandExecutor
	binary   string
	log      *slog.Logger
}

// NewGateway creates a gateway for binary. An empty binary means DefaultBinary.
func NewGateway(executor pexec.CommandExecutor, binary string) *Gateway {
	if executor == nil {
		executor = pexec.NewRealExecutor()
	}
	if binary == "" {
		binary = DefaultBinary
	}
	return &Gateway{
		executor: executor,
		binary:   binary,
		log:      logger.ComponentLogger("git"),
	}
}

// Binary returns the executable the gateway invokes.
func (g *Gateway) Binary() string {
	return g.binary
}

// Try runs the command best effort and hands back the result untouched.
// A command that could not be started reports exit code -1 with the start
// error in Stderr.
func (g *Gateway) Try(ctx context.Context, dir string, args ...string) Result {
	start := time.Now()
	stdout, stderr, err := g.executor.Run(ctx, dir, g.binary, args...)

	res := Result{
		ExitCode: pexec.ExitCode(err),
		Stdout:   string(stdout),
		Stderr:   string(stderr),
	}
	if res.ExitCode == -1 && res.Stderr == "" {
		res.Stderr = err.Error()
	}

	g.log.Debug("command finished",
		"cmd", g.binary+" "+strings.Join(args, " "),
		"dir", dir,
		"exit", res.ExitCode,
		"duration", time.Since(start))
	return res
}

// Must runs the command and fails with a KindGit error carrying the
// arguments and captured output when it exits non-zero.
func (g *Gateway) Must(ctx context.Context, dir string, args ...string) (Result, error) {
	res := g.Try(ctx, dir, args...)
	if res.OK() {
		return res, nil
	}
	return res, errors.GitCommandFailed(&errors.CommandError{
		Command:  g.binary,
		Args:     args,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
		Stdout:   res.Stdout,
	})
}
