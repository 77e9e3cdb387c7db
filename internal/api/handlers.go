package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhubert/arbor/internal/conflict"
	"github.com/zhubert/arbor/internal/notification"
	"github.com/zhubert/arbor/internal/session"
	"github.com/zhubert/arbor/internal/worktree"
)

type createRequest struct {
	FeatureID  string `json:"feature_id"`
	AgentID    string `json:"agent_id"`
	BaseBranch string `json:"base_branch,omitempty"`
}

type filesRequest struct {
	Paths []string `json:"paths"`
}

type commitRequest struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

type metadataRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type idsRequest struct {
	SessionIDs []string `json:"session_ids"`
	Target     string   `json:"target,omitempty"`
}

type cleanupRequest struct {
	Days int `json:"days"`
}

// Health handles GET /health
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := len(s.m.ListSessions(worktree.Filter{}))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"repo":     s.m.RepoPath(),
		"sessions": n,
	})
}

// ListSessions handles GET /sessions?feature=&agent=&status=
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := worktree.Filter{FeatureID: q.Get("feature"), AgentID: q.Get("agent")}
	if st := q.Get("status"); st != "" {
		status, err := session.ParseStatus(st)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = status
	}

	s.mu.Lock()
	list := s.m.ListSessions(f)
	s.mu.Unlock()

	if list == nil {
		list = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

// CreateSession handles POST /sessions
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FeatureID == "" || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "feature_id and agent_id are required")
		return
	}

	s.mu.Lock()
	sess, err := s.m.CreateSession(r.Context(), req.FeatureID, req.AgentID, req.BaseBranch)
	s.mu.Unlock()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// GetSession handles GET /sessions/{id}
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sess, err := s.m.GetSession(chi.URLParam(r, "id"))
	s.mu.Unlock()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Transition handles POST /sessions/{id}/{pause|resume|complete|abandon|sync}
func (s *Server) Transition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	var fn func() (*session.Session, error)
	switch chi.URLParam(r, "action") {
	case "pause":
		fn = func() (*session.Session, error) { return s.m.PauseSession(id) }
	case "resume":
		fn = func() (*session.Session, error) { return s.m.ResumeSession(id) }
	case "complete":
		fn = func() (*session.Session, error) { return s.m.CompleteSession(id) }
	case "abandon":
		fn = func() (*session.Session, error) { return s.m.AbandonSession(ctx, id) }
	case "sync":
		fn = func() (*session.Session, error) { return s.m.SyncSession(ctx, id) }
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}

	s.mu.Lock()
	sess, err := fn()
	s.mu.Unlock()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// RecordFiles handles POST /sessions/{id}/files
func (s *Server) RecordFiles(w http.ResponseWriter, r *http.Request) {
	var req filesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "paths is required")
		return
	}

	s.mu.Lock()
	sess, err := s.m.RecordFiles(chi.URLParam(r, "id"), req.Paths...)
	s.mu.Unlock()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// RecordCommit handles POST /sessions/{id}/commits
func (s *Server) RecordCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Hash == "" {
		writeError(w, http.StatusBadRequest, "hash is required")
		return
	}

	s.mu.Lock()
	sess, err := s.m.RecordCommit(chi.URLParam(r, "id"), req.Hash, req.Message)
	s.mu.Unlock()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// SetMetadata handles POST /sessions/{id}/metadata
func (s *Server) SetMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	s.mu.Lock()
	sess, err := s.m.SetMetadata(chi.URLParam(r, "id"), req.Key, req.Value)
	s.mu.Unlock()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Diff handles GET /sessions/{id}/diff
func (s *Server) Diff(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	diff, err := s.m.Diff(r.Context(), chi.URLParam(r, "id"))
	s.mu.Unlock()
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-diff; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(diff))
}

// Conflicts handles POST /conflicts
func (s *Server) Conflicts(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s.mu.Lock()
	conflicts, err := s.m.DetectConflicts(r.Context(), req.SessionIDs)
	s.mu.Unlock()
	if err != nil {
		writeErr(w, err)
		return
	}
	if conflicts == nil {
		conflicts = []conflict.Conflict{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

// Merge handles POST /merge. A merge blocked by conflicts answers 409 with
// the MergeResult; a failed merge step answers with the error status and
// the rolled-back result.
func (s *Server) Merge(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.SessionIDs) == 0 {
		writeError(w, http.StatusBadRequest, "session_ids is required")
		return
	}

	s.mu.Lock()
	result, err := s.m.MergeSessions(r.Context(), req.SessionIDs, req.Target)
	s.mu.Unlock()

	switch {
	case err != nil && result == nil:
		writeErr(w, err)
	case err != nil:
		writeJSON(w, errStatus(err), result)
	case result.HasConflicts():
		s.notifyConflicts(result)
		writeJSON(w, http.StatusConflict, result)
	default:
		s.notifyMerged(result)
		writeJSON(w, http.StatusOK, result)
	}
}

// Cleanup handles POST /cleanup
func (s *Server) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Days < 0 {
		writeError(w, http.StatusBadRequest, "days must not be negative")
		return
	}

	s.mu.Lock()
	removed, err := s.m.Cleanup(r.Context(), req.Days)
	s.mu.Unlock()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// Worktrees handles GET /worktrees
func (s *Server) Worktrees(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list, err := s.m.ListWorktrees(r.Context())
	s.mu.Unlock()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"worktrees": list})
}

func (s *Server) notifyMerged(result *worktree.MergeResult) {
	if !s.notify {
		return
	}
	_ = notification.MergeCompleted(result.TargetBranch, result.SourceBranches)
}

func (s *Server) notifyConflicts(result *worktree.MergeResult) {
	if !s.notify {
		return
	}
	_ = notification.ConflictsDetected(result.TargetBranch, conflict.Paths(result.Conflicts))
}
