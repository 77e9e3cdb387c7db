package worktree

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/zhubert/arbor/internal/conflict"
	"github.com/zhubert/arbor/internal/errors"
	"github.com/zhubert/arbor/internal/session"
)

// Metadata keys set on every MergeResult that reaches the merge step.
const (
	MetaSessionIDs  = "session_ids"
	MetaPreviousTip = "previous_tip"
)

// MergeResult describes one merge call. Exactly one of CommitHash
// (success), Conflicts (blocked) or Error (failed) is meaningful.
type MergeResult struct {
	Success        bool                `json:"success"`
	TargetBranch   string              `json:"target_branch"`
	SourceBranches []string            `json:"source_branches"`
	CommitHash     string              `json:"commit_hash,omitempty"`
	Conflicts      []conflict.Conflict `json:"conflicts,omitempty"`
	Error          string              `json:"error,omitempty"`
	MergedFiles    []string            `json:"merged_files,omitempty"`
	Metadata       map[string]string   `json:"metadata,omitempty"`
}

// HasConflicts reports whether the merge was blocked by predicted conflicts.
func (r *MergeResult) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// MergeSession merges a single session into target.
func (m *Manager) MergeSession(ctx context.Context, id, target string) (*MergeResult, error) {
	return m.MergeSessions(ctx, []string{id}, target)
}

// MergeSessions merges the sessions' branches into target one at a time.
//
// Predicted conflicts block the whole batch before anything is checked
// out; they come back as a result, not an error. If a merge step fails the
// in-progress merge is aborted and target is reset to its tip from before
// the batch, so the batch lands entirely or not at all. An empty target
// means the default branch.
func (m *Manager) MergeSessions(ctx context.Context, ids []string, target string) (*MergeResult, error) {
	const op = errors.Op("worktree.MergeSessions")

	targets, sessions, err := m.resolveTargets(op, ids, true)
	if err != nil {
		return nil, err
	}
	if target == "" {
		if target, err = m.repo.DefaultBranch(ctx); err != nil {
			return nil, err
		}
	}

	result := &MergeResult{
		TargetBranch: target,
		Metadata:     map[string]string{},
	}
	var sessionIDs []string
	for _, s := range sessions {
		result.SourceBranches = append(result.SourceBranches, s.Branch)
		sessionIDs = append(sessionIDs, s.ID)
	}
	result.Metadata[MetaSessionIDs] = strings.Join(sessionIDs, ",")
	log := m.log.With("target", target, "sessions", result.Metadata[MetaSessionIDs])

	conflicts, err := m.detect(ctx, targets)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		result.Conflicts = conflicts
		log.Info("merge blocked by conflicts", "files", conflict.Paths(conflicts))
		return result, nil
	}

	prevTip, err := m.repo.RevParse(ctx, target)
	if err != nil {
		return nil, err
	}
	result.Metadata[MetaPreviousTip] = prevTip

	if err := m.repo.Checkout(ctx, target); err != nil {
		result.Error = err.Error()
		return result, err
	}

	for i, s := range sessions {
		log.Debug("merging branch", "branch", s.Branch, "step", i+1, "total", len(sessions))
		if err := m.repo.MergeNoFF(ctx, s.Branch, m.renderMessage(s, target)); err != nil {
			m.repo.MergeAbort(ctx)
			if i > 0 {
				m.rollback(ctx, target, prevTip)
			}
			result.Error = err.Error()
			log.Error("merge failed", "branch", s.Branch, "error", err)
			return result, err
		}
	}

	head, err := m.repo.RevParse(ctx, "HEAD")
	if err != nil {
		m.rollback(ctx, target, prevTip)
		result.Error = err.Error()
		return result, err
	}
	files, err := m.repo.ChangedFilesBetween(ctx, prevTip, head)
	if err != nil {
		log.Warn("failed to list merged files, using recorded files", "error", err)
		files = recordedFiles(sessions)
	}

	for _, s := range sessions {
		if err := markMerged(s); err != nil {
			return nil, err
		}
		s.LastActivityAt = m.now()
		m.store.Put(s)
	}

	result.Success = true
	result.CommitHash = head
	result.MergedFiles = files

	if err := m.store.Save(); err != nil {
		return result, err
	}
	log.Info("merge completed", "commit", head, "files", len(files))
	return result, nil
}

// resolveTargets maps ids to sessions. Unknown ids are skipped; it is an
// error if none resolve. When merging, terminal sessions are rejected.
func (m *Manager) resolveTargets(op errors.Op, ids []string, merging bool) ([]conflict.Target, []*session.Session, error) {
	var (
		targets  []conflict.Target
		sessions []*session.Session
		seen     = make(map[string]bool)
	)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		s, ok := m.store.Get(id)
		if !ok {
			m.log.Warn("skipping unknown session", "sessionID", id)
			continue
		}
		if merging && s.Status.Terminal() {
			return nil, nil, errors.E(op, errors.KindInvalid,
				fmt.Sprintf("session %s is already %s", s.ID, s.Status))
		}
		targets = append(targets, conflict.Target{SessionID: s.ID, Branch: s.Branch})
		sessions = append(sessions, s)
	}
	if len(sessions) == 0 {
		return nil, nil, errors.E(op, errors.KindNotFound,
			fmt.Sprintf("none of the sessions [%s] exist", strings.Join(ids, ", ")))
	}
	return targets, sessions, nil
}

// rollback restores target to tip after part of a batch landed.
func (m *Manager) rollback(ctx context.Context, target, tip string) {
	if err := m.repo.ResetKeep(ctx, tip); err != nil {
		m.log.Error("failed to restore target tip", "target", target, "tip", tip, "error", err)
		return
	}
	m.log.Warn("restored target tip after failed merge", "target", target, "tip", tip)
}

// markMerged walks a session along the lifecycle to merged so merged is
// only entered from completed.
func markMerged(s *session.Session) error {
	steps := map[session.Status][]session.Status{
		session.StatusActive:    {session.StatusCompleted, session.StatusMerged},
		session.StatusPaused:    {session.StatusActive, session.StatusCompleted, session.StatusMerged},
		session.StatusCompleted: {session.StatusMerged},
	}
	for _, to := range steps[s.Status] {
		if err := s.SetStatus(to); err != nil {
			return err
		}
	}
	if s.Status != session.StatusMerged {
		return errors.InvalidTransition(s.ID, string(s.Status), string(session.StatusMerged))
	}
	return nil
}

func recordedFiles(sessions []*session.Session) []string {
	var files []string
	for _, s := range sessions {
		for _, f := range s.ModifiedFiles {
			if !slices.Contains(files, f) {
				files = append(files, f)
			}
		}
	}
	slices.Sort(files)
	return files
}
