package worktree

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	pexec "github.com/zhubert/arbor/internal/exec"
	"github.com/zhubert/arbor/internal/git"
	"github.com/zhubert/arbor/internal/session"
	"github.com/zhubert/arbor/internal/store"
)

func seeded(id string, status session.Status, idle time.Duration, now time.Time, dir string) *session.Session {
	at := now.Add(-idle)
	return &session.Session{
		ID:             id,
		Path:           filepath.Join(dir, id),
		Branch:         "feature/" + id,
		FeatureID:      "f",
		AgentID:        id,
		Status:         status,
		CreatedAt:      at,
		LastActivityAt: at,
	}
}

func TestCleanup(t *testing.T) {
	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	repo := t.TempDir()
	wtDir := filepath.Join(repo, DefaultWorktreesDir)

	st := store.NewJSONStore(wtDir)
	day := 24 * time.Hour
	for _, s := range []*session.Session{
		seeded("done", session.StatusCompleted, 10*day, now, wtDir),
		seeded("busy", session.StatusActive, 30*day, now, wtDir),
		seeded("fresh", session.StatusPaused, 2*day, now, wtDir),
		seeded("dropped", session.StatusAbandoned, 8*day, now, wtDir),
	} {
		st.Put(s)
	}
	if err := st.Save(); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(wtDir, "done"), 0755); err != nil {
		t.Fatal(err)
	}

	mock := pexec.NewMockExecutor(nil)
	m, err := New(Options{
		RepoPath: repo,
		Gateway:  git.NewGateway(mock, ""),
		Store:    st,
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	removed, err := m.Cleanup(context.Background(), 7)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	var remaining []string
	for _, s := range m.ListSessions(Filter{}) {
		remaining = append(remaining, s.ID)
	}
	if len(remaining) != 2 || remaining[0] != "busy" || remaining[1] != "fresh" {
		t.Errorf("remaining = %v, want [busy fresh]", remaining)
	}

	if n := len(mock.CallsWithPrefix("worktree", "remove", filepath.Join(wtDir, "done"), "--force")); n != 1 {
		t.Errorf("expected forced removal of the completed worktree, calls: %v", mock.GetCalls())
	}
	if n := len(mock.CallsWithPrefix("worktree", "remove", filepath.Join(wtDir, "dropped"))); n != 0 {
		t.Error("a missing worktree directory should not be removed through git")
	}
	if n := len(mock.CallsWithPrefix("worktree", "prune")); n != 1 {
		t.Errorf("prune calls = %d, want 1", n)
	}

	again, err := m.Cleanup(context.Background(), 7)
	if err != nil || again != 0 {
		t.Errorf("second Cleanup = %d, %v; want 0", again, err)
	}
	if n := len(mock.CallsWithPrefix("worktree", "prune")); n != 2 {
		t.Errorf("prune calls = %d, want 2: Cleanup prunes even when nothing is stale", n)
	}
}

func TestStaleSessions_CutoffIsDaysTimes24h(t *testing.T) {
	now := time.Date(2026, 3, 29, 12, 0, 0, 0, time.UTC)
	repo := t.TempDir()
	st := store.NewJSONStore(filepath.Join(repo, DefaultWorktreesDir))
	day := 24 * time.Hour
	st.Put(seeded("edge", session.StatusCompleted, 7*day, now, repo))
	st.Put(seeded("past", session.StatusCompleted, 7*day+time.Second, now, repo))
	st.Put(seeded("live", session.StatusActive, 30*day, now, repo))

	m, err := New(Options{RepoPath: repo, Gateway: git.NewGateway(pexec.NewMockExecutor(nil), ""), Store: st, Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatal(err)
	}
	stale, err := m.StaleSessions(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0].ID != "past" {
		t.Fatalf("StaleSessions(7) = %v, want [past]", stale)
	}
	if _, err := m.StaleSessions(-1); err == nil {
		t.Error("negative days should fail")
	}

	removed, err := m.Cleanup(context.Background(), 7)
	if err != nil || removed != len(stale) {
		t.Errorf("Cleanup(7) = %d, %v; want %d", removed, err, len(stale))
	}
}

func TestCleanup_ActiveNeverRemoved(t *testing.T) {
	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	repo := t.TempDir()
	st := store.NewJSONStore(filepath.Join(repo, DefaultWorktreesDir))
	st.Put(seeded("ancient", session.StatusActive, 3650*24*time.Hour, now, repo))
	if err := st.Save(); err != nil {
		t.Fatal(err)
	}

	m, err := New(Options{RepoPath: repo, Gateway: git.NewGateway(pexec.NewMockExecutor(nil), ""), Store: st, Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatal(err)
	}
	removed, err := m.Cleanup(context.Background(), 0)
	if err != nil || removed != 0 {
		t.Errorf("Cleanup(0) = %d, %v; want 0", removed, err)
	}
	if _, err := m.Cleanup(context.Background(), -1); err == nil {
		t.Error("negative days should fail")
	}
}
