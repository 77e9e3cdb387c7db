// Package session defines the record of one agent's isolated workspace.
//
// # Overview
//
// Every agent working on a feature gets a Session: a git worktree checked
// out on its own branch. The session tracks which files the agent touched,
// which commits it produced, and where it is in its lifecycle.
//
// # Lifecycle
//
//	active <-> paused
//	active  -> completed -> merged
//	any     -> abandoned
//
// merged and abandoned are terminal; abandon stays reachable from every
// status, including abandoned itself. Every mutator refreshes
// LastActivityAt, which drives cleanup of stale sessions.
//
// # Identity
//
// IDs are Slug(featureID-agentID) followed by an 8 character random
// suffix, for example "checkout-flow-alice-3f9a0c1d". Files and commits
// may only be recorded while the session is active.
//
// This package holds no I/O. Persistence lives in internal/store and
// git side effects in internal/worktree.
package session
