package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zhubert/arbor/internal/errors"
	"github.com/zhubert/arbor/internal/logger"
	"github.com/zhubert/arbor/internal/session"
)

// JSONFileName is the session file kept in the worktrees directory.
const JSONFileName = "sessions.json"

const documentVersion = 1

type document struct {
	Version  int                `json:"version"`
	Sessions []*session.Session `json:"sessions"`
}

// JSONStore keeps sessions in a single JSON document.
type JSONStore struct {
	collection
	path string
}

// NewJSONStore returns an empty store backed by dir/sessions.json.
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{
		collection: newCollection(),
		path:       filepath.Join(dir, JSONFileName),
	}
}

func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) Close() error { return nil }

// Load reads the document from disk. A missing file is an empty store.
func (s *JSONStore) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.collection = newCollection()
		return nil
	}
	if err != nil {
		return errors.StoreLoadFailed(s.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.StoreLoadFailed(s.path, err)
	}
	if doc.Version > documentVersion {
		return errors.StoreLoadFailed(s.path, fmt.Errorf("unsupported document version %d", doc.Version))
	}
	for _, sess := range doc.Sessions {
		if sess == nil {
			return errors.StoreInvalid("null session entry")
		}
		ensureInitialized(sess)
	}
	if err := s.replace(doc.Sessions); err != nil {
		return err
	}
	logger.ComponentLogger("store").Debug("loaded sessions", "path", s.path, "count", len(doc.Sessions))
	return nil
}

// Save rewrites the whole document through a temp file and a rename.
func (s *JSONStore) Save() error {
	list := s.List()
	if err := Validate(list); err != nil {
		return err
	}
	data, err := json.MarshalIndent(document{Version: documentVersion, Sessions: list}, "", "  ")
	if err != nil {
		return errors.StoreSaveFailed(s.path, err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return errors.StoreSaveFailed(s.path, err)
	}
	logger.ComponentLogger("store").Debug("saved sessions", "path", s.path, "count", len(list))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// ensureInitialized replaces nil collections left by older documents.
func ensureInitialized(s *session.Session) {
	if s.ModifiedFiles == nil {
		s.ModifiedFiles = []string{}
	}
	if s.Commits == nil {
		s.Commits = []session.Commit{}
	}
	if s.Metadata == nil {
		s.Metadata = map[string]string{}
	}
}
