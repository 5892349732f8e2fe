// Package daemonstate persists small process-runtime facts that don't
// belong in the relational store — timestamps of the last background sweep
// of each kind — to a flock-guarded JSON file under the run directory, so a
// status endpoint can report them across restarts without touching the
// domain database.
package daemonstate

import (
	"context"
	"path/filepath"
	"time"

	jsonstore "github.com/ggnet/ggnet-core/storage/json"
)

// State is the top-level structure persisted to <run-dir>/state.json.
type State struct {
	LastReconcileAt time.Time `json:"last_reconcile_at"`
	LastGCAt        time.Time `json:"last_gc_at"`
}

// Recorder reads and updates the daemon's runtime-state file.
type Recorder struct {
	store *jsonstore.Store[State]
}

// New returns a Recorder backed by <runDir>/state.json.
func New(runDir string) *Recorder {
	path := filepath.Join(runDir, "state.json")
	lockPath := path + ".lock"
	return &Recorder{store: jsonstore.New[State](lockPath, path)}
}

// RecordReconcile stamps the current time as the last reconciliation sweep.
func (r *Recorder) RecordReconcile(ctx context.Context, at time.Time) error {
	return r.store.Update(ctx, func(s *State) error {
		s.LastReconcileAt = at
		return nil
	})
}

// RecordGC stamps the current time as the last GC sweep.
func (r *Recorder) RecordGC(ctx context.Context, at time.Time) error {
	return r.store.Update(ctx, func(s *State) error {
		s.LastGCAt = at
		return nil
	})
}

// Snapshot returns the current persisted state.
func (r *Recorder) Snapshot(ctx context.Context) (State, error) {
	var out State
	err := r.store.With(ctx, func(s *State) error {
		out = *s
		return nil
	})
	return out, err
}
