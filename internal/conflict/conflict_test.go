package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"testing"

	"github.com/zhubert/arbor/internal/errors"
)

func fakeDiff(changes map[string][]string) (ChangedFilesFunc, *[]string) {
	var calls []string
	return func(ctx context.Context, branch string) ([]string, error) {
		calls = append(calls, branch)
		files, ok := changes[branch]
		if !ok {
			return nil, errors.E(errors.Op("git.Run"), errors.KindGit, fmt.Sprintf("unknown revision %s", branch))
		}
		return files, nil
	}, &calls
}

func TestDetect(t *testing.T) {
	changes := map[string][]string{
		"feature/a": {"src/a.ts", "shared.ts"},
		"feature/b": {"src/b.ts", "shared.ts"},
		"feature/c": {"src/c.ts"},
		"feature/d": {"src/b.ts", "docs/readme.md"},
	}

	tests := []struct {
		name    string
		targets []Target
		want    []string
	}{
		{
			name:    "two sessions share a file",
			targets: []Target{{"a", "feature/a"}, {"b", "feature/b"}},
			want:    []string{"shared.ts"},
		},
		{
			name:    "disjoint changes",
			targets: []Target{{"a", "feature/a"}, {"c", "feature/c"}},
			want:    nil,
		},
		{
			name:    "sorted by path",
			targets: []Target{{"a", "feature/a"}, {"b", "feature/b"}, {"d", "feature/d"}},
			want:    []string{"shared.ts", "src/b.ts"},
		},
		{
			name:    "single target",
			targets: []Target{{"a", "feature/a"}},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff, _ := fakeDiff(changes)
			got, err := NewDetector(diff).Detect(context.Background(), tt.targets)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if !slices.Equal(Paths(got), tt.want) {
				t.Errorf("paths = %v, want %v", Paths(got), tt.want)
			}
		})
	}
}

func TestDetect_ConflictDetails(t *testing.T) {
	diff, _ := fakeDiff(map[string][]string{
		"feature/a": {"shared.ts"},
		"feature/b": {"shared.ts"},
	})
	got, err := NewDetector(diff).Detect(context.Background(), []Target{{"a", "feature/a"}, {"b", "feature/b"}})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	c := got[0]
	if c.Type != TypeContent {
		t.Errorf("Type = %v, want content", c.Type)
	}
	if !slices.Equal(c.SessionIDs, []string{"a", "b"}) || !slices.Equal(c.Branches, []string{"feature/a", "feature/b"}) {
		t.Errorf("SessionIDs = %v, Branches = %v", c.SessionIDs, c.Branches)
	}
	if c.CanAutoResolve {
		t.Error("content conflicts must not be auto-resolvable")
	}
	var strategies []Strategy
	for _, r := range c.Resolutions {
		strategies = append(strategies, r.Strategy)
	}
	if !slices.Equal(strategies, []Strategy{StrategyOurs, StrategyTheirs, StrategyManual}) {
		t.Errorf("strategies = %v", strategies)
	}
}

func TestDetect_DuplicateBranchCountsOnce(t *testing.T) {
	diff, calls := fakeDiff(map[string][]string{"feature/a": {"x.go", "x.go"}})
	got, err := NewDetector(diff).Detect(context.Background(), []Target{{"a", "feature/a"}, {"a", "feature/a"}})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("conflicts = %v, want none", Paths(got))
	}
	if len(*calls) != 1 {
		t.Errorf("diff called %d times, want 1", len(*calls))
	}
}

func TestDetect_DiffErrorIsWrapped(t *testing.T) {
	diff, _ := fakeDiff(map[string][]string{"feature/a": {"x.go"}})
	_, err := NewDetector(diff).Detect(context.Background(), []Target{{"a", "feature/a"}, {"z", "feature/missing"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errors.KindGit) {
		t.Errorf("kind = %v, want git", errors.GetKind(err))
	}
}

func TestType_JSON(t *testing.T) {
	data, err := json.Marshal(Conflict{FilePath: "a", Type: TypeRename})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if raw["type"] != "rename" {
		t.Errorf("type = %v, want rename", raw["type"])
	}

	var back Conflict
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Type != TypeRename {
		t.Errorf("Type = %v, want rename", back.Type)
	}
	if err := json.Unmarshal([]byte(`{"type":"bogus"}`), &back); err == nil {
		t.Error("unknown type should fail to unmarshal")
	}
}
