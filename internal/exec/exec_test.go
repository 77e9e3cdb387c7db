package exec

import (
	"context"
	"errors"
	osexec "os/exec"
	"strings"
	"testing"
)

func TestRealExecutor_CapturesOutputAndExitCode(t *testing.T) {
	if _, err := osexec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	stdout, stderr, err := NewRealExecutor().Run(context.Background(), t.TempDir(), "sh", "-c", "echo out; echo err >&2; exit 3")

	if got := strings.TrimSpace(string(stdout)); got != "out" {
		t.Errorf("stdout = %q, want %q", got, "out")
	}
	if got := strings.TrimSpace(string(stderr)); got != "err" {
		t.Errorf("stderr = %q, want %q", got, "err")
	}
	if ExitCode(err) != 3 {
		t.Errorf("ExitCode = %d, want 3 (err=%v)", ExitCode(err), err)
	}
}

func TestRealExecutor_MissingBinary(t *testing.T) {
	_, _, err := NewRealExecutor().Run(context.Background(), t.TempDir(), "arbor-definitely-not-a-binary")
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
	if ExitCode(err) != -1 {
		t.Errorf("ExitCode = %d, want -1 for a command that never ran", ExitCode(err))
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"exit error", &ExitError{Code: 128}, 128},
		{"wrapped exit error", errors.Join(errors.New("ctx"), &ExitError{Code: 2}), 2},
		{"other error", errors.New("boom"), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMockExecutor_Matching(t *testing.T) {
	ctx := context.Background()
	m := NewMockExecutor(nil)
	m.AddPrefixMatch("git", []string{"worktree"}, MockResponse{Stdout: []byte("prefix")})
	m.AddExactMatch("git", []string{"worktree", "list"}, MockResponse{Stdout: []byte("exact")})
	m.AddPrefixMatch("git", []string{"merge"}, MockResponse{Stderr: []byte("CONFLICT"), ExitCode: 1})

	out, _, err := m.Run(ctx, "/repo", "git", "worktree", "list")
	if err != nil || string(out) != "exact" {
		t.Errorf("exact match: out=%q err=%v", out, err)
	}

	out, _, err = m.Run(ctx, "/repo", "git", "worktree", "prune")
	if err != nil || string(out) != "prefix" {
		t.Errorf("prefix match: out=%q err=%v", out, err)
	}

	_, stderr, err := m.Run(ctx, "/repo", "git", "merge", "--no-ff", "x")
	if ExitCode(err) != 1 || string(stderr) != "CONFLICT" {
		t.Errorf("failing match: stderr=%q err=%v", stderr, err)
	}

	out, _, err = m.Run(ctx, "/repo", "git", "status")
	if err != nil || len(out) != 0 {
		t.Errorf("fallback: out=%q err=%v", out, err)
	}

	if calls := m.GetCalls(); len(calls) != 4 {
		t.Fatalf("expected 4 recorded calls, got %d", len(calls))
	}
	if calls := m.CallsWithPrefix("worktree"); len(calls) != 2 {
		t.Errorf("expected 2 worktree calls, got %d", len(calls))
	}
}

func TestMockExecutor_Once(t *testing.T) {
	ctx := context.Background()
	m := NewMockExecutor(&MockResponse{Stdout: []byte("default")})
	m.AddOnce(func(_, _ string, args []string) bool { return args[0] == "rev-parse" }, MockResponse{Stdout: []byte("first")})

	first, _, _ := m.Run(ctx, "", "git", "rev-parse", "HEAD")
	second, _, _ := m.Run(ctx, "", "git", "rev-parse", "HEAD")
	if string(first) != "first" || string(second) != "default" {
		t.Errorf("got %q then %q, want first then default", first, second)
	}
}

func TestMockExecutor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMockExecutor(nil)
	if _, _, err := m.Run(ctx, "", "git", "status"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(m.GetCalls()) != 1 {
		t.Error("cancelled calls should still be recorded")
	}
}

func TestMockCall_String(t *testing.T) {
	c := MockCall{Name: "git", Args: []string{"merge", "--abort"}}
	if c.String() != "git merge --abort" {
		t.Errorf("String() = %q", c.String())
	}
}
