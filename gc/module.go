package gc

import (
	"context"

	"github.com/ggnet/ggnet-core/lock"
)

// Module describes one reconciliation/GC participant keyed by a typed
// snapshot S (e.g. the set of staging files on disk, or the set of targets
// the iSCSI daemon actually has configured).
type Module[S any] struct {
	Name string

	// Locker coordinates with concurrent operations on the same resource
	// (e.g. an in-flight upload). TryLock returning false means "busy,
	// retry next cycle" rather than an error.
	Locker lock.Locker

	// ReadSnapshot reads the module's current state. Called while the lock
	// is held — must not re-acquire it.
	ReadSnapshot func(ctx context.Context) (S, error)

	// Resolve inspects this module's typed snapshot plus every other
	// module's untyped snapshot and returns the resource IDs to collect.
	// Called with no lock held.
	Resolve func(snapshot S, others map[string]any) []string

	// Collect removes the given IDs (or does housekeeping when ids is
	// empty). Called while the lock is held — must not re-acquire it.
	Collect func(ctx context.Context, ids []string) error
}

func (m Module[S]) getName() string        { return m.Name }
func (m Module[S]) getLocker() lock.Locker { return m.Locker }

func (m Module[S]) readSnapshot(ctx context.Context) (any, error) {
	return m.ReadSnapshot(ctx)
}

func (m Module[S]) resolveTargets(snap any, others map[string]any) []string {
	return m.Resolve(snap.(S), others)
}

func (m Module[S]) collect(ctx context.Context, ids []string) error {
	return m.Collect(ctx, ids)
}
