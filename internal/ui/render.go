package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/zhubert/arbor/internal/conflict"
	"github.com/zhubert/arbor/internal/git"
	"github.com/zhubert/arbor/internal/session"
	"github.com/zhubert/arbor/internal/worktree"
)

// RelativeTime renders how long ago t was, relative to now.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// SessionTable lists sessions one per row.
func SessionTable(list []*session.Session, now time.Time) string {
	if len(list) == 0 {
		return MutedStyle.Render("No sessions.") + "\n"
	}
	t := NewTable("ID", "STATUS", "BRANCH", "FILES", "COMMITS", "ACTIVE")
	for _, s := range list {
		t.AddRow(
			s.ID,
			StatusBadge(s.Status),
			BranchStyle.Render(s.Branch),
			fmt.Sprint(len(s.ModifiedFiles)),
			fmt.Sprint(len(s.Commits)),
			RelativeTime(s.LastActivityAt, now),
		)
	}
	return t.Render()
}

// SessionDetail renders every field of one session.
func SessionDetail(s *session.Session, now time.Time) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(s.ID) + "  " + StatusBadge(s.Status) + "\n")

	field := func(label, value string) {
		b.WriteString(LabelStyle.Render(fmt.Sprintf("%-10s", label)) + " " + value + "\n")
	}
	field("feature", s.FeatureID)
	field("agent", s.AgentID)
	field("branch", BranchStyle.Render(s.Branch))
	if s.BaseBranch != "" {
		field("base", s.BaseBranch)
	}
	field("path", s.Path)
	field("created", s.CreatedAt.Local().Format(time.DateTime))
	field("active", RelativeTime(s.LastActivityAt, now))

	if len(s.Metadata) > 0 {
		keys := make([]string, 0, len(s.Metadata))
		for k := range s.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString("\n" + HeaderStyle.Render("Metadata") + "\n")
		for _, k := range keys {
			b.WriteString("  " + LabelStyle.Render(k+":") + " " + s.Metadata[k] + "\n")
		}
	}

	b.WriteString("\n" + HeaderStyle.Render(fmt.Sprintf("Files (%d)", len(s.ModifiedFiles))) + "\n")
	for _, f := range s.ModifiedFiles {
		b.WriteString("  " + f + "\n")
	}

	b.WriteString("\n" + HeaderStyle.Render(fmt.Sprintf("Commits (%d)", len(s.Commits))) + "\n")
	for _, c := range s.Commits {
		b.WriteString("  " + WarningStyle.Render(shortHash(c.Hash)) + " " + c.Message + "\n")
	}
	return b.String()
}

// ConflictTable lists predicted conflicts with the branches involved.
func ConflictTable(conflicts []conflict.Conflict) string {
	t := NewTable("FILE", "TYPE", "BRANCHES")
	for _, c := range conflicts {
		t.AddRow(ErrorStyle.Render(c.FilePath), c.Type.String(), strings.Join(c.Branches, ", "))
	}
	return t.Render()
}

// MergeSummary describes the outcome of a merge call.
func MergeSummary(r *worktree.MergeResult) string {
	var b strings.Builder
	switch {
	case r.HasConflicts():
		b.WriteString(WarningStyle.Render(fmt.Sprintf("Merge into %s blocked by %d conflicting file(s):", r.TargetBranch, len(r.Conflicts))) + "\n\n")
		b.WriteString(ConflictTable(r.Conflicts))
	case r.Success:
		b.WriteString(SuccessStyle.Render(fmt.Sprintf("Merged %d branch(es) into %s", len(r.SourceBranches), r.TargetBranch)) + "\n")
		b.WriteString(LabelStyle.Render("commit ") + r.CommitHash + "\n")
		for _, br := range r.SourceBranches {
			b.WriteString("  " + BranchStyle.Render(br) + "\n")
		}
		if len(r.MergedFiles) > 0 {
			b.WriteString(LabelStyle.Render(fmt.Sprintf("%d file(s) changed", len(r.MergedFiles))) + "\n")
		}
	default:
		b.WriteString(ErrorStyle.Render("Merge failed: ") + r.Error + "\n")
		if tip := r.Metadata[worktree.MetaPreviousTip]; tip != "" {
			b.WriteString(LabelStyle.Render(r.TargetBranch+" restored to ") + shortHash(tip) + "\n")
		}
	}
	return b.String()
}

// WorktreeTable lists git worktrees.
func WorktreeTable(list []git.WorktreeInfo) string {
	t := NewTable("PATH", "BRANCH", "HEAD")
	t.MaxCellWidth = 80
	for _, w := range list {
		branch := w.Branch
		if branch == "" {
			branch = MutedStyle.Render("(detached)")
		}
		t.AddRow(w.Path, branch, shortHash(w.Head))
	}
	return t.Render()
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
