// Package conflict predicts which files a batch of session branches would
// fight over when merged together.
//
// Detection compares each branch with one shared base (the repository's
// default branch) rather than pairwise merge bases. Any path changed by two
// or more branches is reported, even if git could merge the hunks cleanly.
package conflict

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/zhubert/arbor/internal/errors"
)

// Type classifies a conflict.
type Type int

const (
	TypeContent Type = iota
	TypeRename
	TypeDelete
)

var typeNames = map[Type]string{
	TypeContent: "content",
	TypeRename:  "rename",
	TypeDelete:  "delete",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

func (t Type) MarshalText() ([]byte, error) {
	name, ok := typeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown conflict type %d", int(t))
	}
	return []byte(name), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	for k, name := range typeNames {
		if name == string(b) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown conflict type %q", b)
}

// Strategy names a way to resolve a conflict.
type Strategy string

const (
	StrategyOurs   Strategy = "ours"
	StrategyTheirs Strategy = "theirs"
	StrategyManual Strategy = "manual"
)

// Resolution is one suggested way out of a conflict.
type Resolution struct {
	Strategy    Strategy `json:"strategy"`
	Description string   `json:"description"`
}

// Conflict is a file touched by more than one session in a batch.
type Conflict struct {
	FilePath       string            `json:"file_path"`
	Type           Type              `json:"type"`
	SessionIDs     []string          `json:"session_ids"`
	Branches       []string          `json:"branches"`
	Sections       map[string]string `json:"sections,omitempty"`
	Description    string            `json:"description"`
	Resolutions    []Resolution      `json:"resolutions"`
	CanAutoResolve bool              `json:"can_auto_resolve"`
}

// Target is one session branch taking part in a merge batch.
type Target struct {
	SessionID string
	Branch    string
}

// ChangedFilesFunc returns the files branch changed relative to the
// default branch.
type ChangedFilesFunc func(ctx context.Context, branch string) ([]string, error)

// Detector finds overlapping changes between branches.
type Detector struct {
	Diff ChangedFilesFunc
}

// NewDetector returns a Detector using diff to list changed files.
func NewDetector(diff ChangedFilesFunc) *Detector {
	return &Detector{Diff: diff}
}

type toucher struct {
	sessionID string
	branch    string
}

// Detect reports every path changed by at least two targets, sorted by path.
// A branch listed more than once is only diffed and counted once.
func (d *Detector) Detect(ctx context.Context, targets []Target) ([]Conflict, error) {
	touched := make(map[string][]toucher)
	seen := make(map[string]bool)

	for _, t := range targets {
		if seen[t.Branch] {
			continue
		}
		seen[t.Branch] = true

		files, err := d.Diff(ctx, t.Branch)
		if err != nil {
			return nil, errors.E(errors.Op("conflict.Detect"), errors.GetKind(err),
				fmt.Sprintf("failed to list changes on %s", t.Branch), err)
		}
		for _, f := range dedupe(files) {
			touched[f] = append(touched[f], toucher{sessionID: t.SessionID, branch: t.Branch})
		}
	}

	var conflicts []Conflict
	for path, who := range touched {
		if len(who) < 2 {
			continue
		}
		conflicts = append(conflicts, newContentConflict(path, who))
	}
	slices.SortFunc(conflicts, func(a, b Conflict) int {
		return strings.Compare(a.FilePath, b.FilePath)
	})
	return conflicts, nil
}

func newContentConflict(path string, who []toucher) Conflict {
	c := Conflict{
		FilePath: path,
		Type:     TypeContent,
	}
	for _, w := range who {
		c.SessionIDs = append(c.SessionIDs, w.sessionID)
		c.Branches = append(c.Branches, w.branch)
	}
	c.Description = fmt.Sprintf("%s is modified by %d sessions (%s)", path, len(who), strings.Join(c.Branches, ", "))
	c.Resolutions = []Resolution{
		{Strategy: StrategyOurs, Description: fmt.Sprintf("keep the version from %s", c.Branches[0])},
		{Strategy: StrategyTheirs, Description: fmt.Sprintf("keep the version from %s", c.Branches[len(c.Branches)-1])},
		{Strategy: StrategyManual, Description: "merge the changes by hand"},
	}
	return c
}

// Paths returns the conflicting file paths in order.
func Paths(conflicts []Conflict) []string {
	out := make([]string, len(conflicts))
	for i, c := range conflicts {
		out[i] = c.FilePath
	}
	return out
}

func dedupe(files []string) []string {
	out := make([]string, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
