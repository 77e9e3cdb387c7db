// Package store persists sessions between arbor invocations.
//
// A Store keeps the whole session collection in memory. Load replaces it
// from disk and Save writes it back wholesale, so a crash mid-save leaves
// either the old or the new collection, never a mix.
package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/zhubert/arbor/internal/errors"
	"github.com/zhubert/arbor/internal/session"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Store is the session repository used by the orchestrator.
// Get and List return copies; callers hand changes back with Put.
type Store interface {
	Load() error
	Save() error
	Get(id string) (*session.Session, bool)
	Put(s *session.Session)
	Delete(id string) bool
	List() []*session.Session
	Path() string
	Close() error
}

// Open returns the store for backend rooted in dir. It does not read the
// session collection; the owner calls Load (worktree.New does).
func Open(backend, dir string) (Store, error) {
	var s Store
	switch strings.ToLower(backend) {
	case "", BackendJSON:
		s = NewJSONStore(dir)
	case BackendSQLite:
		sq, err := NewSQLiteStore(dir)
		if err != nil {
			return nil, err
		}
		s = sq
	default:
		return nil, errors.E(errors.Op("store.Open"), errors.KindConfig, fmt.Sprintf("unknown store backend %q", backend))
	}
	return s, nil
}

// collection is the in-memory state shared by every backend.
type collection struct {
	sessions map[string]*session.Session
}

func newCollection() collection {
	return collection{sessions: make(map[string]*session.Session)}
}

func (c *collection) Get(id string) (*session.Session, bool) {
	s, ok := c.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

func (c *collection) Put(s *session.Session) {
	c.sessions[s.ID] = s.Clone()
}

func (c *collection) Delete(id string) bool {
	if _, ok := c.sessions[id]; !ok {
		return false
	}
	delete(c.sessions, id)
	return true
}

// List returns every session ordered by creation time, then id.
func (c *collection) List() []*session.Session {
	out := make([]*session.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.Clone())
	}
	sortSessions(out)
	return out
}

// replace swaps in a freshly loaded set after validating it.
func (c *collection) replace(list []*session.Session) error {
	if err := Validate(list); err != nil {
		return err
	}
	next := make(map[string]*session.Session, len(list))
	for _, s := range list {
		next[s.ID] = s.Clone()
	}
	c.sessions = next
	return nil
}

// Validate checks that every session is well formed and that no two
// sessions share an id, worktree path or branch.
func Validate(list []*session.Session) error {
	ids := make(map[string]bool)
	paths := make(map[string]string)
	branches := make(map[string]string)
	for _, s := range list {
		if err := s.Validate(); err != nil {
			return err
		}
		if ids[s.ID] {
			return errors.StoreInvalid(fmt.Sprintf("duplicate session ID: %s", s.ID))
		}
		ids[s.ID] = true
		if other, ok := paths[s.Path]; ok {
			return errors.StoreInvalid(fmt.Sprintf("sessions %s and %s share path %s", other, s.ID, s.Path))
		}
		paths[s.Path] = s.ID
		if other, ok := branches[s.Branch]; ok {
			return errors.StoreInvalid(fmt.Sprintf("sessions %s and %s share branch %s", other, s.ID, s.Branch))
		}
		branches[s.Branch] = s.ID
	}
	return nil
}

func sortSessions(list []*session.Session) {
	slices.SortFunc(list, func(a, b *session.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
