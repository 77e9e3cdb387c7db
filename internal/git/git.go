package git

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zhubert/arbor/internal/errors"
	"github.com/zhubert/arbor/internal/logger"
)

const originHEAD = "refs/remotes/origin/HEAD"

// Repo runs repository operations through a Gateway, rooted at Path.
type Repo struct {
	gw   *Gateway
	Path string
}

// NewRepo returns a Repo for the repository at path.
func NewRepo(gw *Gateway, path string) *Repo {
	return &Repo{gw: gw, Path: path}
}

// TopLevel returns the root of the working tree containing dir.
func TopLevel(ctx context.Context, gw *Gateway, dir string) (string, error) {
	res, err := gw.Must(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", errors.E(errors.Op("git.TopLevel"), errors.KindGit, fmt.Sprintf("%s is not inside a git repository", dir), err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Gateway exposes the underlying command gateway.
func (r *Repo) Gateway() *Gateway {
	return r.gw
}

// Commit is one entry of a branch's history.
type Commit struct {
	Hash    string
	Message string
	Time    time.Time
}

// WorktreeInfo is one record of `worktree list --porcelain`.
type WorktreeInfo struct {
	Path   string `json:"path"`
	Head   string `json:"head"`
	Branch string `json:"branch,omitempty"`
}

// DefaultBranch resolves the repository's default branch: origin's HEAD,
// then local main, then local master.
func (r *Repo) DefaultBranch(ctx context.Context) (string, error) {
	res := r.gw.Try(ctx, r.Path, "symbolic-ref", "--quiet", originHEAD)
	if res.OK() {
		// Output is like "refs/remotes/origin/main"
		ref := strings.TrimSpace(res.Stdout)
		if branch, ok := strings.CutPrefix(ref, "refs/remotes/origin/"); ok && branch != "" {
			return branch, nil
		}
	}

	for _, candidate := range []string{"main", "master"} {
		if r.BranchExists(ctx, candidate) {
			return candidate, nil
		}
	}

	return "", errors.GitNoDefaultBranch(r.Path)
}

// BranchExists checks whether a local branch exists.
func (r *Repo) BranchExists(ctx context.Context, branch string) bool {
	return r.gw.Try(ctx, r.Path, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch).OK()
}

// CreateBranch creates branch pointing at base without checking it out.
func (r *Repo) CreateBranch(ctx context.Context, branch, base string) error {
	_, err := r.gw.Must(ctx, r.Path, "branch", branch, base)
	return err
}

// DeleteBranch deletes a local branch. force uses -D instead of -d.
func (r *Repo) DeleteBranch(ctx context.Context, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := r.gw.Must(ctx, r.Path, "branch", flag, branch)
	return err
}

// AddWorktree checks out an existing branch into a new worktree at path.
func (r *Repo) AddWorktree(ctx context.Context, path, branch string) error {
	if _, err := r.gw.Must(ctx, r.Path, "worktree", "add", path, branch); err != nil {
		return errors.GitWorktreeFailed(branch, err)
	}
	return nil
}

// RemoveWorktree removes the worktree at path.
func (r *Repo) RemoveWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	_, err := r.gw.Must(ctx, r.Path, args...)
	return err
}

// PruneWorktrees drops administrative records of worktrees that no longer exist.
func (r *Repo) PruneWorktrees(ctx context.Context) error {
	_, err := r.gw.Must(ctx, r.Path, "worktree", "prune")
	return err
}

// ListWorktrees parses `worktree list --porcelain`.
func (r *Repo) ListWorktrees(ctx context.Context) ([]WorktreeInfo, error) {
	res, err := r.gw.Must(ctx, r.Path, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeList(res.Stdout), nil
}

// ParseWorktreeList parses porcelain worktree output. Records are separated
// by blank lines; detached and bare worktrees have no branch.
func ParseWorktreeList(out string) []WorktreeInfo {
	var (
		list []WorktreeInfo
		cur  *WorktreeInfo
	)
	flush := func() {
		if cur != nil && cur.Path != "" {
			list = append(list, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			flush()
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			flush()
			cur = &WorktreeInfo{Path: value}
		case "HEAD":
			if cur != nil {
				cur.Head = value
			}
		case "branch":
			if cur != nil {
				cur.Branch = strings.TrimPrefix(value, "refs/heads/")
			}
		}
	}
	flush()
	return list
}

// Checkout switches the main checkout to branch.
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	_, err := r.gw.Must(ctx, r.Path, "checkout", branch)
	return err
}

// CurrentBranch returns the checked-out branch, or "HEAD" when detached.
func (r *Repo) CurrentBranch(ctx context.Context) string {
	res := r.gw.Try(ctx, r.Path, "rev-parse", "--abbrev-ref", "HEAD")
	if branch := strings.TrimSpace(res.Stdout); res.OK() && branch != "" {
		return branch
	}
	return "HEAD"
}

// MergeNoFF merges branch into the current branch, always creating a merge commit.
func (r *Repo) MergeNoFF(ctx context.Context, branch, message string) error {
	if _, err := r.gw.Must(ctx, r.Path, "merge", "--no-ff", "-m", message, branch); err != nil {
		return errors.GitMergeFailed(branch, err)
	}
	return nil
}

// MergeAbort abandons an in-progress merge. Best effort: there may be no
// merge to abort when the failure happened before git started one.
func (r *Repo) MergeAbort(ctx context.Context) Result {
	res := r.gw.Try(ctx, r.Path, "merge", "--abort")
	if !res.OK() {
		logger.Warn("Git: merge --abort in %s exited %d: %s", r.Path, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res
}

// ResetKeep moves the current branch to rev, updating files that differ
// between HEAD and rev while keeping local changes. Git refuses when a
// local change is in a file the reset would have to overwrite.
func (r *Repo) ResetKeep(ctx context.Context, rev string) error {
	_, err := r.gw.Must(ctx, r.Path, "reset", "--keep", rev)
	return err
}

// RevParse resolves rev to a full object name.
func (r *Repo) RevParse(ctx context.Context, rev string) (string, error) {
	res, err := r.gw.Must(ctx, r.Path, "rev-parse", rev)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ChangedFiles lists files changed on branch since it diverged from base.
func (r *Repo) ChangedFiles(ctx context.Context, base, branch string) ([]string, error) {
	return r.nameOnly(ctx, base+"..."+branch)
}

// ChangedFilesBetween lists files that differ between two revisions.
func (r *Repo) ChangedFilesBetween(ctx context.Context, from, to string) ([]string, error) {
	return r.nameOnly(ctx, from, to)
}

func (r *Repo) nameOnly(ctx context.Context, revs ...string) ([]string, error) {
	args := append([]string{"diff", "--name-only"}, revs...)
	res, err := r.gw.Must(ctx, r.Path, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(res.Stdout), nil
}

// Diff returns the unified diff of branch against its merge base with base.
func (r *Repo) Diff(ctx context.Context, base, branch string) (string, error) {
	res, err := r.gw.Must(ctx, r.Path, "diff", base+"..."+branch)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// logFormat separates fields with the ASCII unit separator.
const logFormat = "--format=%H%x1f%s%x1f%cI"

// CommitsBetween lists commits reachable from branch but not base, oldest first.
func (r *Repo) CommitsBetween(ctx context.Context, base, branch string) ([]Commit, error) {
	res, err := r.gw.Must(ctx, r.Path, "log", "--reverse", logFormat, base+".."+branch)
	if err != nil {
		return nil, err
	}

	var commits []Commit
	for _, line := range splitLines(res.Stdout) {
		parts := strings.SplitN(line, "\x1f", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("unexpected log line %q", line)
		}
		ts, err := time.Parse(time.RFC3339, parts[2])
		if err != nil {
			return nil, fmt.Errorf("parse commit time %q: %w", parts[2], err)
		}
		commits = append(commits, Commit{Hash: parts[0], Message: parts[1], Time: ts})
	}
	return commits, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
