package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pexec "github.com/zhubert/arbor/internal/exec"
	"github.com/zhubert/arbor/internal/git"
	"github.com/zhubert/arbor/internal/session"
	"github.com/zhubert/arbor/internal/worktree"
)

type testServer struct {
	h    http.Handler
	mock *pexec.MockExecutor
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	mock := pexec.NewMockExecutor(nil)
	// Each reading is a second later so cleanup cutoffs are never ties.
	tick := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	m, err := worktree.New(worktree.Options{
		RepoPath: t.TempDir(),
		Gateway:  git.NewGateway(mock, ""),
		Clock:    clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("worktree.New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testServer{h: NewRouter(m, opts), mock: mock}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) create(t *testing.T, feature, agent string) *session.Session {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/sessions", createRequest{FeatureID: feature, AgentID: agent})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s/%s: status %d: %s", feature, agent, rec.Code, rec.Body)
	}
	var s session.Session
	decode(t, rec, &s)
	return &s
}

func (ts *testServer) changes(branch string, files ...string) {
	ts.mock.AddExactMatch("git", []string{"diff", "--name-only", "main..." + branch},
		pexec.MockResponse{Stdout: []byte(strings.Join(files, "\n") + "\n")})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{APIKey: "secret"})
	rec := ts.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestBearerAuth(t *testing.T) {
	ts := newTestServer(t, Options{APIKey: "secret"})

	if rec := ts.do(t, http.MethodGet, "/sessions", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", rec.Code)
	}
}

func TestCreateAndGet(t *testing.T) {
	ts := newTestServer(t, Options{})
	s := ts.create(t, "checkout", "alice")

	if s.Status != session.StatusActive || s.Branch != "feature/checkout-alice" {
		t.Errorf("created %+v", s)
	}

	rec := ts.do(t, http.MethodGet, "/sessions/"+s.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	var got session.Session
	decode(t, rec, &got)
	if got.ID != s.ID {
		t.Errorf("got id %q, want %q", got.ID, s.ID)
	}

	// Creating again returns the same live session.
	again := ts.create(t, "checkout", "alice")
	if again.ID != s.ID {
		t.Errorf("second create id = %q, want %q", again.ID, s.ID)
	}
}

func TestCreate_BadRequests(t *testing.T) {
	ts := newTestServer(t, Options{})
	tests := []struct {
		name string
		body string
	}{
		{"malformed", "{"},
		{"missing agent", `{"feature_id":"x"}`},
		{"unknown field", `{"feature_id":"x","agent_id":"y","nope":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			ts.h.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t, Options{})
	s := ts.create(t, "search", "bob")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown session", http.MethodGet, "/sessions/nope", nil, http.StatusNotFound},
		{"unknown session action", http.MethodPost, "/sessions/nope/pause", nil, http.StatusNotFound},
		{"unknown action", http.MethodPost, "/sessions/" + s.ID + "/explode", nil, http.StatusNotFound},
		{"invalid transition", http.MethodPost, "/sessions/" + s.ID + "/resume", nil, http.StatusConflict},
		{"bad status filter", http.MethodGet, "/sessions?status=zombie", nil, http.StatusBadRequest},
		{"negative cleanup", http.MethodPost, "/cleanup", cleanupRequest{Days: -1}, http.StatusBadRequest},
		{"empty merge", http.MethodPost, "/merge", idsRequest{}, http.StatusBadRequest},
		{"merge unknown", http.MethodPost, "/merge", idsRequest{SessionIDs: []string{"nope"}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestLifecycleAndRecording(t *testing.T) {
	ts := newTestServer(t, Options{})
	s := ts.create(t, "payments", "carol")
	base := "/sessions/" + s.ID

	rec := ts.do(t, http.MethodPost, base+"/files", filesRequest{Paths: []string{"pay.go", "./pay.go"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("files: %d %s", rec.Code, rec.Body)
	}
	rec = ts.do(t, http.MethodPost, base+"/commits", commitRequest{Hash: "abc123", Message: "Add payments"})
	if rec.Code != http.StatusOK {
		t.Fatalf("commits: %d %s", rec.Code, rec.Body)
	}
	rec = ts.do(t, http.MethodPost, base+"/metadata", metadataRequest{Key: "ticket", Value: "P-7"})
	if rec.Code != http.StatusOK {
		t.Fatalf("metadata: %d %s", rec.Code, rec.Body)
	}
	var got session.Session
	decode(t, rec, &got)
	if len(got.ModifiedFiles) != 1 || len(got.Commits) != 1 || got.Metadata["ticket"] != "P-7" {
		t.Errorf("session after recording: %+v", got)
	}

	for _, step := range []struct {
		action string
		want   session.Status
	}{
		{"pause", session.StatusPaused},
		{"resume", session.StatusActive},
		{"complete", session.StatusCompleted},
	} {
		rec := ts.do(t, http.MethodPost, base+"/"+step.action, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", step.action, rec.Code, rec.Body)
		}
		decode(t, rec, &got)
		if got.Status != step.want {
			t.Errorf("after %s status = %s, want %s", step.action, got.Status, step.want)
		}
	}

	// Completed sessions no longer accept files.
	if rec := ts.do(t, http.MethodPost, base+"/files", filesRequest{Paths: []string{"x"}}); rec.Code != http.StatusConflict {
		t.Errorf("files on completed: status = %d, want 409", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/sessions?status=completed", nil)
	var list struct {
		Sessions []session.Session `json:"sessions"`
	}
	decode(t, rec, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].ID != s.ID {
		t.Errorf("filtered list = %+v", list.Sessions)
	}
}

func TestMerge(t *testing.T) {
	t.Run("conflict answers 409 with result", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		a := ts.create(t, "orders", "alice")
		b := ts.create(t, "orders", "bob")
		ts.changes(a.Branch, "app/Models/Order.php", "a.go")
		ts.changes(b.Branch, "app/Models/Order.php")

		rec := ts.do(t, http.MethodPost, "/conflicts", idsRequest{SessionIDs: []string{a.ID, b.ID}})
		var found struct {
			Conflicts []map[string]any `json:"conflicts"`
		}
		decode(t, rec, &found)
		if len(found.Conflicts) != 1 || found.Conflicts[0]["file_path"] != "app/Models/Order.php" {
			t.Errorf("conflicts = %+v", found.Conflicts)
		}

		rec = ts.do(t, http.MethodPost, "/merge", idsRequest{SessionIDs: []string{a.ID, b.ID}})
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body)
		}
		var result worktree.MergeResult
		decode(t, rec, &result)
		if result.Success || len(result.Conflicts) != 1 {
			t.Errorf("result = %+v", result)
		}
		if calls := ts.mock.CallsWithPrefix("merge"); len(calls) != 0 {
			t.Errorf("merge ran despite conflicts: %v", calls)
		}
	})

	t.Run("success", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		a := ts.create(t, "orders", "alice")
		ts.changes(a.Branch, "a.go")

		rec := ts.do(t, http.MethodPost, "/merge", idsRequest{SessionIDs: []string{a.ID}, Target: "main"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body)
		}
		rec = ts.do(t, http.MethodGet, "/sessions/"+a.ID, nil)
		var got session.Session
		decode(t, rec, &got)
		if got.Status != session.StatusMerged {
			t.Errorf("status = %s, want merged", got.Status)
		}
	})

	t.Run("git failure answers 502 with rolled back result", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		a := ts.create(t, "orders", "alice")
		ts.mock.AddPrefixMatch("git", []string{"merge", "--no-ff"},
			pexec.MockResponse{ExitCode: 1, Stderr: []byte("CONFLICT (content)")})

		rec := ts.do(t, http.MethodPost, "/merge", idsRequest{SessionIDs: []string{a.ID}})
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502: %s", rec.Code, rec.Body)
		}
		var result worktree.MergeResult
		decode(t, rec, &result)
		if result.Success || result.Error == "" {
			t.Errorf("result = %+v", result)
		}
	})
}

func TestCleanupAndWorktrees(t *testing.T) {
	ts := newTestServer(t, Options{})
	s := ts.create(t, "docs", "dave")
	ts.do(t, http.MethodPost, "/sessions/"+s.ID+"/abandon", nil)

	rec := ts.do(t, http.MethodPost, "/cleanup", cleanupRequest{Days: 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup: %d %s", rec.Code, rec.Body)
	}
	var out map[string]int
	decode(t, rec, &out)
	if out["removed"] != 1 {
		t.Errorf("removed = %d, want 1", out["removed"])
	}

	ts.mock.AddExactMatch("git", []string{"worktree", "list", "--porcelain"}, pexec.MockResponse{
		Stdout: []byte("worktree /repo\nHEAD 0123\nbranch refs/heads/main\n\n"),
	})
	rec = ts.do(t, http.MethodGet, "/worktrees", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"branch":"main"`) {
		t.Errorf("worktrees: %d %s", rec.Code, rec.Body)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	addrc := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", ts.h, slog.New(slog.NewTextHandler(io.Discard, nil)), func(a net.Addr) { addrc <- a })
	}()

	var addr net.Addr
	select {
	case addr = <-addrc:
	case err := <-done:
		t.Fatalf("Serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}
