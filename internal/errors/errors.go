// Package errors provides structured error types for arbor.
// These errors provide context about what operation failed and where.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Op describes an operation, usually as "package.function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalid
	KindIO
	KindConfig
	KindGit
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "invalid"
	case KindIO:
		return "I/O error"
	case KindConfig:
		return "configuration error"
	case KindGit:
		return "git error"
	default:
		return "unknown error"
	}
}

// Error is the structured error type for arbor.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Err     error  // Underlying error
	Context string // Additional context
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Kind: the error kind
// - string: context message
// - error: the underlying error
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	return e
}

// Is reports whether err is of the given Kind.
// The outermost *Error in the chain decides.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns the Kind of an error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CommandError carries the captured output of a failed external command.
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Stdout   string
}

// Error includes stderr, or stdout when stderr is empty: git merge reports
// conflicts on stdout.
func (c *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s exited with status %d", c.Command, strings.Join(c.Args, " "), c.ExitCode)
	out := strings.TrimSpace(c.Stderr)
	if out == "" {
		out = strings.TrimSpace(c.Stdout)
	}
	if out != "" {
		msg += ": " + out
	}
	return msg
}

// Session errors
func SessionNotFound(op Op, id string) error {
	return E(op, KindNotFound, fmt.Sprintf("session %s not found", id))
}

func InvalidTransition(id, from, to string) error {
	return E(Op("session.SetStatus"), KindInvalid, fmt.Sprintf("session %s cannot move from %s to %s", id, from, to))
}

func SessionNotActive(op Op, id, status string) error {
	return E(op, KindInvalid, fmt.Sprintf("session %s is %s, not active", id, status))
}

// Store errors
func StoreLoadFailed(path string, err error) error {
	return E(Op("store.Load"), KindIO, fmt.Sprintf("failed to load sessions from %s", path), err)
}

func StoreSaveFailed(path string, err error) error {
	return E(Op("store.Save"), KindIO, fmt.Sprintf("failed to save sessions to %s", path), err)
}

func StoreInvalid(reason string) error {
	return E(Op("store.Validate"), KindInvalid, reason)
}

// Config errors
func ConfigLoadFailed(path string, err error) error {
	return E(Op("config.Load"), KindConfig, fmt.Sprintf("failed to load config from %s", path), err)
}

func ConfigInvalid(reason string) error {
	return E(Op("config.Validate"), KindConfig, reason)
}

// Git errors
func GitCommandFailed(cmd *CommandError) error {
	return E(Op("git.Run"), KindGit, cmd)
}

func GitWorktreeFailed(branch string, err error) error {
	return E(Op("git.AddWorktree"), KindGit, fmt.Sprintf("failed to create worktree for branch %s", branch), err)
}

func GitMergeFailed(branch string, err error) error {
	return E(Op("git.Merge"), KindGit, fmt.Sprintf("failed to merge branch %s", branch), err)
}

func GitNoDefaultBranch(repoPath string) error {
	return E(Op("git.DefaultBranch"), KindGit, fmt.Sprintf("cannot resolve a default branch in %s (no origin HEAD, main or master)", repoPath))
}
