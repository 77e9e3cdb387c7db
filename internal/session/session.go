package session

import (
	"fmt"
	"maps"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zhubert/arbor/internal/errors"
)

// Status is a session's position in its lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusMerged    Status = "merged"
	StatusAbandoned Status = "abandoned"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusActive, StatusPaused, StatusCompleted, StatusMerged, StatusAbandoned}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Terminal reports whether s only allows a move to abandoned.
func (s Status) Terminal() bool {
	return s == StatusMerged || s == StatusAbandoned
}

// ParseStatus converts user input to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", errors.E(errors.Op("session.ParseStatus"), errors.KindInvalid, fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

// transitions holds every allowed move except "anything to abandoned".
var transitions = map[Status][]Status{
	StatusActive:    {StatusPaused, StatusCompleted},
	StatusPaused:    {StatusActive},
	StatusCompleted: {StatusMerged},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to Status) bool {
	if to == StatusAbandoned {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// Commit is a commit an agent reported for its session.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one agent's isolated workspace: a worktree on its own branch.
type Session struct {
	ID             string            `json:"id"`
	Path           string            `json:"path"`
	Branch         string            `json:"branch"`
	BaseBranch     string            `json:"base_branch,omitempty"`
	FeatureID      string            `json:"feature_id"`
	AgentID        string            `json:"agent_id"`
	Status         Status            `json:"status"`
	ModifiedFiles  []string          `json:"modified_files"`
	Commits        []Commit          `json:"commits"`
	Metadata       map[string]string `json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
}

// now is swapped by tests that need fixed timestamps.
var now = func() time.Time { return time.Now().UTC().Round(0) }

var slugBadRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases s and collapses every run of other characters into '-'.
func Slug(s string) string {
	slug := strings.Trim(slugBadRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if slug == "" {
		return "session"
	}
	return slug
}

// NewID derives a readable, collision-resistant session id.
func NewID(featureID, agentID string) string {
	return Slug(featureID+"-"+agentID) + "-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// New creates an active session.
func New(featureID, agentID, path, branch, baseBranch string) *Session {
	ts := now()
	return &Session{
		ID:             NewID(featureID, agentID),
		Path:           path,
		Branch:         branch,
		BaseBranch:     baseBranch,
		FeatureID:      featureID,
		AgentID:        agentID,
		Status:         StatusActive,
		ModifiedFiles:  []string{},
		Commits:        []Commit{},
		Metadata:       map[string]string{},
		CreatedAt:      ts,
		LastActivityAt: ts,
	}
}

// Touch refreshes the activity timestamp.
func (s *Session) Touch() {
	s.LastActivityAt = now()
}

// SetStatus moves the session to status to.
func (s *Session) SetStatus(to Status) error {
	if !to.Valid() {
		return errors.E(errors.Op("session.SetStatus"), errors.KindInvalid, fmt.Sprintf("unknown status %q", to))
	}
	if !CanTransition(s.Status, to) {
		return errors.InvalidTransition(s.ID, string(s.Status), string(to))
	}
	s.Status = to
	s.Touch()
	return nil
}

// AddFiles records files the agent modified. Paths are cleaned to
// slash-separated form and recorded once, in first-seen order.
func (s *Session) AddFiles(paths ...string) error {
	if s.Status != StatusActive {
		return errors.SessionNotActive(errors.Op("session.AddFiles"), s.ID, string(s.Status))
	}
	for _, p := range paths {
		p = normalizePath(p)
		if p == "" || slices.Contains(s.ModifiedFiles, p) {
			continue
		}
		s.ModifiedFiles = append(s.ModifiedFiles, p)
	}
	s.Touch()
	return nil
}

// AddCommit appends a commit. A hash already recorded is ignored.
func (s *Session) AddCommit(c Commit) error {
	if s.Status != StatusActive {
		return errors.SessionNotActive(errors.Op("session.AddCommit"), s.ID, string(s.Status))
	}
	if c.Hash == "" {
		return errors.E(errors.Op("session.AddCommit"), errors.KindInvalid, "commit hash is required")
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = now()
	}
	if !s.HasCommit(c.Hash) {
		s.Commits = append(s.Commits, c)
	}
	s.Touch()
	return nil
}

// SetMetadata stores a key/value pair.
func (s *Session) SetMetadata(key, value string) {
	if s.Metadata == nil {
		s.Metadata = map[string]string{}
	}
	s.Metadata[key] = value
	s.Touch()
}

// HasFile reports whether path was recorded as modified.
func (s *Session) HasFile(p string) bool {
	return slices.Contains(s.ModifiedFiles, normalizePath(p))
}

// HasCommit reports whether a commit with hash was recorded.
func (s *Session) HasCommit(hash string) bool {
	return slices.ContainsFunc(s.Commits, func(c Commit) bool { return c.Hash == hash })
}

// IdleFor returns how long the session has been inactive at t.
func (s *Session) IdleFor(t time.Time) time.Duration {
	return t.Sub(s.LastActivityAt)
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.ModifiedFiles = slices.Clone(s.ModifiedFiles)
	c.Commits = slices.Clone(s.Commits)
	c.Metadata = maps.Clone(s.Metadata)
	if c.ModifiedFiles == nil {
		c.ModifiedFiles = []string{}
	}
	if c.Commits == nil {
		c.Commits = []Commit{}
	}
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	return &c
}

// Validate checks the fields every stored session must have.
func (s *Session) Validate() error {
	switch {
	case s.ID == "":
		return errors.StoreInvalid("session with empty ID found")
	case s.Path == "":
		return errors.StoreInvalid(fmt.Sprintf("session %s has empty path", s.ID))
	case s.Branch == "":
		return errors.StoreInvalid(fmt.Sprintf("session %s has empty branch", s.ID))
	case !s.Status.Valid():
		return errors.StoreInvalid(fmt.Sprintf("session %s has unknown status %q", s.ID, s.Status))
	}
	return nil
}

func normalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}
