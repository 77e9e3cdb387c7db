// Package api exposes the session manager as a JSON HTTP service so agents
// running in separate processes can drive it.
package api

import (
	"log/slog"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/zhubert/arbor/internal/worktree"
)

// Options configures the router.
type Options struct {
	APIKey string
	Notify bool // desktop notification after a batch merge
	Logger *slog.Logger
}

// Server wraps a Manager. The store has a single writer, so every
// Manager call runs under mu.
type Server struct {
	mu     sync.Mutex
	m      *worktree.Manager
	notify bool
	log    *slog.Logger
}

// NewRouter creates the chi router with all routes and middleware.
func NewRouter(m *worktree.Manager, opts Options) *chi.Mux {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{m: m, notify: opts.Notify, log: log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recovery(log))

	r.Get("/health", s.Health)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(opts.APIKey))

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.ListSessions)
			r.Post("/", s.CreateSession)
			r.Get("/{id}", s.GetSession)
			r.Get("/{id}/diff", s.Diff)
			r.Post("/{id}/files", s.RecordFiles)
			r.Post("/{id}/commits", s.RecordCommit)
			r.Post("/{id}/metadata", s.SetMetadata)
			r.Post("/{id}/{action}", s.Transition)
		})
		r.Post("/conflicts", s.Conflicts)
		r.Post("/merge", s.Merge)
		r.Post("/cleanup", s.Cleanup)
		r.Get("/worktrees", s.Worktrees)
	})

	return r
}
