package git

import (
	"strings"
	"testing"
)

func TestValidateBranchName(t *testing.T) {
	tests := []struct {
		name    string
		branch  string
		wantErr bool
	}{
		{"feature branch", "feature/checkout-flow-alice", false},
		{"dotted", "release/1.2.3", false},
		{"underscore", "feature/my_agent", false},
		{"empty", "", true},
		{"leading hyphen", "-feature", true},
		{"lock suffix", "feature/x.lock", true},
		{"trailing slash", "feature/", true},
		{"double dot", "feature/a..b", true},
		{"double slash", "feature//a", true},
		{"space", "feature/a b", true},
		{"colon", "feature:a", true},
		{"too long", "feature/" + strings.Repeat("a", MaxBranchNameLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBranchName(tt.branch)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBranchName(%q) error = %v, wantErr %v", tt.branch, err, tt.wantErr)
			}
		})
	}
}
