package daemonstate

import (
	"context"
	"testing"
	"time"
)

func TestRecordReconcileAndGCPersistAcrossInstances(t *testing.T) {
	ctx := context.Background()
	runDir := t.TempDir()

	r1 := New(runDir)
	reconcileAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := r1.RecordReconcile(ctx, reconcileAt); err != nil {
		t.Fatalf("record reconcile: %v", err)
	}

	r2 := New(runDir)
	gcAt := time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC)
	if err := r2.RecordGC(ctx, gcAt); err != nil {
		t.Fatalf("record gc: %v", err)
	}

	snap, err := r1.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.LastReconcileAt.Equal(reconcileAt) {
		t.Fatalf("expected reconcile timestamp %v, got %v", reconcileAt, snap.LastReconcileAt)
	}
	if !snap.LastGCAt.Equal(gcAt) {
		t.Fatalf("expected gc timestamp %v, got %v", gcAt, snap.LastGCAt)
	}
}

func TestSnapshotOfUnwrittenStateIsZeroValue(t *testing.T) {
	ctx := context.Background()
	snap, err := New(t.TempDir()).Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.LastReconcileAt.IsZero() || !snap.LastGCAt.IsZero() {
		t.Fatalf("expected zero-value state, got %+v", snap)
	}
}
