package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zhubert/arbor/internal/errors"
	"github.com/zhubert/arbor/internal/logger"
	"github.com/zhubert/arbor/internal/session"
)

// SQLiteFileName is the database kept in the worktrees directory.
const SQLiteFileName = "sessions.db"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	branch TEXT NOT NULL UNIQUE,
	base_branch TEXT NOT NULL DEFAULT '',
	feature_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	status TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	last_activity_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS session_files (
	session_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	path TEXT NOT NULL,
	PRIMARY KEY (session_id, position),
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS session_commits (
	session_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	hash TEXT NOT NULL,
	message TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	PRIMARY KEY (session_id, position),
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);
`

// SQLiteStore keeps sessions in a SQLite database. The in-memory
// collection is authoritative between Load and Save.
type SQLiteStore struct {
	collection
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) dir/sessions.db.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	path := filepath.Join(dir, SQLiteFileName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.StoreLoadFailed(path, err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, errors.StoreLoadFailed(path, fmt.Errorf("open sqlite: %w", err))
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.StoreLoadFailed(path, fmt.Errorf("init schema: %w", err))
	}

	return &SQLiteStore{collection: newCollection(), db: db, path: path}, nil
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads every session with its files and commits.
func (s *SQLiteStore) Load() error {
	rows, err := s.db.Query(`
		SELECT id, path, branch, base_branch, feature_id, agent_id, status,
			metadata, created_at, last_activity_at
		FROM sessions`)
	if err != nil {
		return errors.StoreLoadFailed(s.path, err)
	}
	defer rows.Close()

	byID := make(map[string]*session.Session)
	var list []*session.Session
	for rows.Next() {
		var (
			sess                      session.Session
			status, metadata          string
			createdAt, lastActivityAt string
		)
		if err := rows.Scan(&sess.ID, &sess.Path, &sess.Branch, &sess.BaseBranch,
			&sess.FeatureID, &sess.AgentID, &status, &metadata, &createdAt, &lastActivityAt); err != nil {
			return errors.StoreLoadFailed(s.path, err)
		}
		sess.Status = session.Status(status)
		if err := json.Unmarshal([]byte(metadata), &sess.Metadata); err != nil {
			return errors.StoreLoadFailed(s.path, fmt.Errorf("session %s metadata: %w", sess.ID, err))
		}
		if sess.CreatedAt, err = parseTime(createdAt); err != nil {
			return errors.StoreLoadFailed(s.path, err)
		}
		if sess.LastActivityAt, err = parseTime(lastActivityAt); err != nil {
			return errors.StoreLoadFailed(s.path, err)
		}
		ensureInitialized(&sess)
		byID[sess.ID] = &sess
		list = append(list, &sess)
	}
	if err := rows.Err(); err != nil {
		return errors.StoreLoadFailed(s.path, err)
	}

	if err := s.loadFiles(byID); err != nil {
		return errors.StoreLoadFailed(s.path, err)
	}
	if err := s.loadCommits(byID); err != nil {
		return errors.StoreLoadFailed(s.path, err)
	}

	if err := s.replace(list); err != nil {
		return err
	}
	logger.ComponentLogger("store").Debug("loaded sessions", "path", s.path, "count", len(list))
	return nil
}

func (s *SQLiteStore) loadFiles(byID map[string]*session.Session) error {
	rows, err := s.db.Query(`SELECT session_id, path FROM session_files ORDER BY session_id, position`)
	if err != nil {
		return fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return fmt.Errorf("scan file: %w", err)
		}
		if sess, ok := byID[id]; ok {
			sess.ModifiedFiles = append(sess.ModifiedFiles, path)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadCommits(byID map[string]*session.Session) error {
	rows, err := s.db.Query(`SELECT session_id, hash, message, timestamp FROM session_commits ORDER BY session_id, position`)
	if err != nil {
		return fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, ts string
		var c session.Commit
		if err := rows.Scan(&id, &c.Hash, &c.Message, &ts); err != nil {
			return fmt.Errorf("scan commit: %w", err)
		}
		if c.Timestamp, err = parseTime(ts); err != nil {
			return err
		}
		if sess, ok := byID[id]; ok {
			sess.Commits = append(sess.Commits, c)
		}
	}
	return rows.Err()
}

// Save replaces every row inside one transaction.
func (s *SQLiteStore) Save() error {
	list := s.List()
	if err := Validate(list); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.StoreSaveFailed(s.path, err)
	}
	if err := writeAll(tx, list); err != nil {
		tx.Rollback()
		return errors.StoreSaveFailed(s.path, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreSaveFailed(s.path, err)
	}
	logger.ComponentLogger("store").Debug("saved sessions", "path", s.path, "count", len(list))
	return nil
}

func writeAll(tx *sql.Tx, list []*session.Session) error {
	for _, stmt := range []string{`DELETE FROM session_commits`, `DELETE FROM session_files`, `DELETE FROM sessions`} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("clear tables: %w", err)
		}
	}

	for _, sess := range list {
		metadata, err := json.Marshal(sess.Metadata)
		if err != nil {
			return fmt.Errorf("session %s metadata: %w", sess.ID, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO sessions (
				id, path, branch, base_branch, feature_id, agent_id, status,
				metadata, created_at, last_activity_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.Path, sess.Branch, sess.BaseBranch, sess.FeatureID, sess.AgentID,
			string(sess.Status), string(metadata), formatTime(sess.CreatedAt), formatTime(sess.LastActivityAt),
		); err != nil {
			return fmt.Errorf("insert session %s: %w", sess.ID, err)
		}
		for i, f := range sess.ModifiedFiles {
			if _, err := tx.Exec(`INSERT INTO session_files (session_id, position, path) VALUES (?, ?, ?)`,
				sess.ID, i, f); err != nil {
				return fmt.Errorf("insert file for %s: %w", sess.ID, err)
			}
		}
		for i, c := range sess.Commits {
			if _, err := tx.Exec(`INSERT INTO session_commits (session_id, position, hash, message, timestamp) VALUES (?, ?, ?, ?, ?)`,
				sess.ID, i, c.Hash, c.Message, formatTime(c.Timestamp)); err != nil {
				return fmt.Errorf("insert commit for %s: %w", sess.ID, err)
			}
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
