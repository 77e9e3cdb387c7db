package worktree

import (
	"context"
	"os"
	"time"

	"github.com/zhubert/arbor/internal/errors"
	"github.com/zhubert/arbor/internal/session"
)

// StaleSessions returns the sessions Cleanup would remove for days: every
// non-active session whose last activity is more than days*24h old.
func (m *Manager) StaleSessions(days int) ([]*session.Session, error) {
	if days < 0 {
		return nil, errors.E(errors.Op("worktree.StaleSessions"), errors.KindInvalid, "days must not be negative")
	}
	cutoff := m.now().Add(-time.Duration(days) * 24 * time.Hour)

	var stale []*session.Session
	for _, s := range m.store.List() {
		if s.Status != session.StatusActive && s.LastActivityAt.Before(cutoff) {
			stale = append(stale, s)
		}
	}
	return stale, nil
}

// Cleanup removes every session StaleSessions reports and returns how many
// were removed. Active sessions are never touched. Stale worktree metadata
// is pruned even when no session qualifies.
func (m *Manager) Cleanup(ctx context.Context, days int) (int, error) {
	stale, err := m.StaleSessions(days)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, s := range stale {
		log := m.log.With("sessionID", s.ID)

		if _, err := os.Stat(s.Path); err == nil {
			if err := m.repo.RemoveWorktree(ctx, s.Path, true); err != nil {
				log.Warn("worktree remove failed, removing directory", "path", s.Path, "error", err)
				if rmErr := os.RemoveAll(s.Path); rmErr != nil {
					log.Warn("failed to remove worktree directory", "path", s.Path, "error", rmErr)
				}
			}
		}
		m.store.Delete(s.ID)
		removed++
		log.Info("cleaned up session", "status", s.Status, "idle", s.IdleFor(m.now()).Round(time.Minute))
	}

	if removed > 0 {
		if err := m.store.Save(); err != nil {
			return 0, err
		}
	}
	if err := m.repo.PruneWorktrees(ctx); err != nil {
		m.log.Warn("worktree prune failed", "error", err)
	}
	return removed, nil
}
