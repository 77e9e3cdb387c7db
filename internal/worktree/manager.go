// Package worktree orchestrates agent sessions: it creates a branch and
// worktree per agent, drives the session lifecycle, and merges finished
// branches back into a target branch.
package worktree

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhubert/arbor/internal/conflict"
	"github.com/zhubert/arbor/internal/errors"
	"github.com/zhubert/arbor/internal/git"
	"github.com/zhubert/arbor/internal/logger"
	"github.com/zhubert/arbor/internal/session"
	"github.com/zhubert/arbor/internal/store"
)

// DefaultWorktreesDir is where worktrees live, relative to the repository.
const DefaultWorktreesDir = ".worktrees"

// DefaultMergeMessage is the merge commit template. Placeholders are
// {branch}, {target}, {session}, {agent} and {feature}.
const DefaultMergeMessage = "Merge {branch} into {target} (session {session})"

// Options configures a Manager.
type Options struct {
	RepoPath     string
	WorktreesDir string // relative paths resolve against RepoPath
	Gateway      *git.Gateway
	Store        store.Store // defaults to a JSONStore in WorktreesDir
	Clock        func() time.Time
	MergeMessage string
	Logger       *slog.Logger
}

// Manager owns the sessions of one repository.
type Manager struct {
	repo         *git.Repo
	store        store.Store
	worktreesDir string
	now          func() time.Time
	mergeMessage string
	log          *slog.Logger
}

// Filter narrows ListSessions. Zero fields match everything.
type Filter struct {
	FeatureID string
	AgentID   string
	Status    session.Status
}

// New builds a Manager and loads its store.
func New(opts Options) (*Manager, error) {
	if opts.RepoPath == "" {
		return nil, errors.E(errors.Op("worktree.New"), errors.KindConfig, "repository path is required")
	}
	repoPath, err := filepath.Abs(opts.RepoPath)
	if err != nil {
		return nil, errors.E(errors.Op("worktree.New"), errors.KindConfig, err)
	}

	dir := opts.WorktreesDir
	if dir == "" {
		dir = DefaultWorktreesDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repoPath, dir)
	}

	gw := opts.Gateway
	if gw == nil {
		gw = git.NewGateway(nil, "")
	}

	m := &Manager{
		repo:         git.NewRepo(gw, repoPath),
		store:        opts.Store,
		worktreesDir: dir,
		now:          opts.Clock,
		mergeMessage: opts.MergeMessage,
		log:          opts.Logger,
	}
	if m.store == nil {
		m.store = store.NewJSONStore(dir)
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC().Round(0) }
	}
	if m.mergeMessage == "" {
		m.mergeMessage = DefaultMergeMessage
	}
	if m.log == nil {
		m.log = logger.ComponentLogger("worktree")
	}

	if err := m.store.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

// RepoPath returns the absolute repository root.
func (m *Manager) RepoPath() string { return m.repo.Path }

// WorktreesDir returns the absolute directory holding session worktrees.
func (m *Manager) WorktreesDir() string { return m.worktreesDir }

// Store returns the backing session store.
func (m *Manager) Store() store.Store { return m.store }

// Close releases the store.
func (m *Manager) Close() error { return m.store.Close() }

// BranchName returns the branch a feature/agent pair works on.
func BranchName(featureID, agentID string) string {
	return "feature/" + session.Slug(featureID) + "-" + agentID
}

// CreateSession gives agentID its own branch and worktree for featureID.
// Asking again for a pair that already has a live session returns that
// session unchanged.
func (m *Manager) CreateSession(ctx context.Context, featureID, agentID, baseBranch string) (*session.Session, error) {
	const op = errors.Op("worktree.CreateSession")
	if strings.TrimSpace(featureID) == "" || strings.TrimSpace(agentID) == "" {
		return nil, errors.E(op, errors.KindInvalid, "feature and agent ids are required")
	}

	branch := BranchName(featureID, agentID)
	if err := git.ValidateBranchName(branch); err != nil {
		return nil, errors.E(op, errors.KindInvalid, err)
	}
	path := filepath.Join(m.worktreesDir, session.Slug(featureID)+"-"+agentID)

	for _, s := range m.store.List() {
		if s.Branch != branch && s.Path != path {
			continue
		}
		if !s.Status.Terminal() {
			m.log.Info("session already exists", "sessionID", s.ID, "branch", s.Branch, "status", s.Status)
			return s, nil
		}
		m.log.Info("dropping stale session record", "sessionID", s.ID, "status", s.Status)
		m.store.Delete(s.ID)
	}

	base := baseBranch
	if base == "" {
		var err error
		if base, err = m.repo.DefaultBranch(ctx); err != nil {
			return nil, err
		}
	}

	if !m.repo.BranchExists(ctx, branch) {
		m.log.Debug("creating branch", "branch", branch, "base", base)
		if err := m.repo.CreateBranch(ctx, branch, base); err != nil {
			return nil, err
		}
	}

	if isWorktree(path) {
		m.log.Info("reusing existing worktree", "path", path)
	} else {
		m.log.Debug("adding worktree", "path", path, "branch", branch)
		if err := m.repo.AddWorktree(ctx, path, branch); err != nil {
			return nil, err
		}
	}

	s := session.New(featureID, agentID, path, branch, base)
	s.CreatedAt = m.now()
	s.LastActivityAt = s.CreatedAt
	m.store.Put(s)
	if err := m.store.Save(); err != nil {
		return nil, err
	}

	m.log.Info("session created", "sessionID", s.ID, "branch", branch, "base", base, "path", path)
	return s, nil
}

// GetSession returns a copy of session id.
func (m *Manager) GetSession(id string) (*session.Session, error) {
	return m.get(errors.Op("worktree.GetSession"), id)
}

// ListSessions returns the sessions matching f, oldest first.
func (m *Manager) ListSessions(f Filter) []*session.Session {
	var out []*session.Session
	for _, s := range m.store.List() {
		if f.FeatureID != "" && s.FeatureID != f.FeatureID {
			continue
		}
		if f.AgentID != "" && s.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, s)
	}
	return out
}

// PauseSession moves an active session to paused.
func (m *Manager) PauseSession(id string) (*session.Session, error) {
	return m.transition(errors.Op("worktree.PauseSession"), id, session.StatusPaused)
}

// ResumeSession moves a paused session back to active.
func (m *Manager) ResumeSession(id string) (*session.Session, error) {
	return m.transition(errors.Op("worktree.ResumeSession"), id, session.StatusActive)
}

// CompleteSession marks an active session's work as finished.
func (m *Manager) CompleteSession(id string) (*session.Session, error) {
	return m.transition(errors.Op("worktree.CompleteSession"), id, session.StatusCompleted)
}

// AbandonSession removes the session's worktree and branch and marks it
// abandoned. Removal is best effort; the status change is always saved.
func (m *Manager) AbandonSession(ctx context.Context, id string) (*session.Session, error) {
	s, err := m.get(errors.Op("worktree.AbandonSession"), id)
	if err != nil {
		return nil, err
	}
	log := m.log.With("sessionID", s.ID)

	if err := m.repo.RemoveWorktree(ctx, s.Path, true); err != nil {
		log.Warn("worktree remove failed, removing directory", "path", s.Path, "error", err)
		if rmErr := os.RemoveAll(s.Path); rmErr != nil {
			log.Warn("failed to remove worktree directory", "path", s.Path, "error", rmErr)
		}
	}
	if err := m.repo.DeleteBranch(ctx, s.Branch, true); err != nil {
		log.Warn("failed to delete branch", "branch", s.Branch, "error", err)
	}

	if err := s.SetStatus(session.StatusAbandoned); err != nil {
		return nil, err
	}
	if err := m.save(s); err != nil {
		return nil, err
	}
	log.Info("session abandoned")
	return s, nil
}

// RecordFiles adds paths to the session's modified files.
func (m *Manager) RecordFiles(id string, paths ...string) (*session.Session, error) {
	s, err := m.get(errors.Op("worktree.RecordFiles"), id)
	if err != nil {
		return nil, err
	}
	if err := s.AddFiles(paths...); err != nil {
		return nil, err
	}
	return s, m.save(s)
}

// RecordCommit appends a commit the agent produced.
func (m *Manager) RecordCommit(id, hash, message string) (*session.Session, error) {
	s, err := m.get(errors.Op("worktree.RecordCommit"), id)
	if err != nil {
		return nil, err
	}
	if err := s.AddCommit(session.Commit{Hash: hash, Message: message, Timestamp: m.now()}); err != nil {
		return nil, err
	}
	return s, m.save(s)
}

// SetMetadata stores a key/value pair on the session.
func (m *Manager) SetMetadata(id, key, value string) (*session.Session, error) {
	if key == "" {
		return nil, errors.E(errors.Op("worktree.SetMetadata"), errors.KindInvalid, "metadata key is required")
	}
	s, err := m.get(errors.Op("worktree.SetMetadata"), id)
	if err != nil {
		return nil, err
	}
	s.SetMetadata(key, value)
	return s, m.save(s)
}

// SyncSession records the files and commits git sees on an active
// session's branch since it left its base.
func (m *Manager) SyncSession(ctx context.Context, id string) (*session.Session, error) {
	const op = errors.Op("worktree.SyncSession")
	s, err := m.get(op, id)
	if err != nil {
		return nil, err
	}
	if s.Status != session.StatusActive {
		return nil, errors.SessionNotActive(op, s.ID, string(s.Status))
	}
	base, err := m.baseOf(ctx, s)
	if err != nil {
		return nil, err
	}

	files, err := m.repo.ChangedFiles(ctx, base, s.Branch)
	if err != nil {
		return nil, err
	}
	commits, err := m.repo.CommitsBetween(ctx, base, s.Branch)
	if err != nil {
		return nil, err
	}

	if err := s.AddFiles(files...); err != nil {
		return nil, err
	}
	for _, c := range commits {
		if err := s.AddCommit(session.Commit{Hash: c.Hash, Message: c.Message, Timestamp: c.Time}); err != nil {
			return nil, err
		}
	}
	if err := m.save(s); err != nil {
		return nil, err
	}
	m.log.Debug("session synced", "sessionID", s.ID, "files", len(s.ModifiedFiles), "commits", len(s.Commits))
	return s, nil
}

// Diff returns the session branch's unified diff against its base.
func (m *Manager) Diff(ctx context.Context, id string) (string, error) {
	s, err := m.get(errors.Op("worktree.Diff"), id)
	if err != nil {
		return "", err
	}
	base, err := m.baseOf(ctx, s)
	if err != nil {
		return "", err
	}
	return m.repo.Diff(ctx, base, s.Branch)
}

// ListWorktrees reports every worktree git knows about.
func (m *Manager) ListWorktrees(ctx context.Context) ([]git.WorktreeInfo, error) {
	return m.repo.ListWorktrees(ctx)
}

// DetectConflicts reports files changed by more than one of the sessions
// without touching any branch. No ids means every live session.
func (m *Manager) DetectConflicts(ctx context.Context, ids []string) ([]conflict.Conflict, error) {
	if len(ids) == 0 {
		for _, s := range m.store.List() {
			if !s.Status.Terminal() {
				ids = append(ids, s.ID)
			}
		}
		if len(ids) < 2 {
			return nil, nil
		}
	}
	targets, _, err := m.resolveTargets(errors.Op("worktree.DetectConflicts"), ids, false)
	if err != nil {
		return nil, err
	}
	return m.detect(ctx, targets)
}

func (m *Manager) detect(ctx context.Context, targets []conflict.Target) ([]conflict.Conflict, error) {
	base, err := m.repo.DefaultBranch(ctx)
	if err != nil {
		return nil, err
	}
	d := conflict.NewDetector(func(ctx context.Context, branch string) ([]string, error) {
		return m.repo.ChangedFiles(ctx, base, branch)
	})
	return d.Detect(ctx, targets)
}

func (m *Manager) transition(op errors.Op, id string, to session.Status) (*session.Session, error) {
	s, err := m.get(op, id)
	if err != nil {
		return nil, err
	}
	from := s.Status
	if err := s.SetStatus(to); err != nil {
		return nil, err
	}
	if err := m.save(s); err != nil {
		return nil, err
	}
	m.log.Info("session status changed", "sessionID", s.ID, "from", from, "to", to)
	return s, nil
}

func (m *Manager) get(op errors.Op, id string) (*session.Session, error) {
	s, ok := m.store.Get(id)
	if !ok {
		return nil, errors.SessionNotFound(op, id)
	}
	return s, nil
}

// save stamps the session with the manager clock and persists it.
func (m *Manager) save(s *session.Session) error {
	s.LastActivityAt = m.now()
	m.store.Put(s)
	return m.store.Save()
}

func (m *Manager) baseOf(ctx context.Context, s *session.Session) (string, error) {
	if s.BaseBranch != "" {
		return s.BaseBranch, nil
	}
	return m.repo.DefaultBranch(ctx)
}

// isWorktree reports whether path is already a git checkout.
func isWorktree(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

func (m *Manager) renderMessage(s *session.Session, target string) string {
	return strings.NewReplacer(
		"{branch}", s.Branch,
		"{target}", target,
		"{session}", s.ID,
		"{agent}", s.AgentID,
		"{feature}", s.FeatureID,
	).Replace(m.mergeMessage)
}
