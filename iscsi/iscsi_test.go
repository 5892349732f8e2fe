package iscsi

import (
	"context"
	"errors"
	"testing"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/types"
)

func TestFakeCreateForRecordsTarget(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	machine := &types.Machine{ID: "m1", Hostname: "client-1", MACAddress: "52:54:00:aa:bb:cc"}
	image := &types.Image{ID: "img1", FilePath: "/var/lib/ggnet/images/img1.raw"}

	target, err := f.CreateFor(ctx, machine, image, CreateOptions{OrgName: "ggnet", PortalIP: "10.0.0.1", PortalPort: 3260})
	if err != nil {
		t.Fatalf("CreateFor: %v", err)
	}
	if target.Status != types.TargetStatusActive {
		t.Fatalf("expected ACTIVE, got %s", target.Status)
	}

	status, err := f.GetStatus(ctx, target.IQN)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != StatusActive {
		t.Fatalf("expected ACTIVE status, got %s", status)
	}

	if err := f.Destroy(ctx, target.IQN); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := f.Destroy(ctx, target.IQN); err != nil {
		t.Fatalf("second Destroy should be idempotent, got: %v", err)
	}

	status, err = f.GetStatus(ctx, target.IQN)
	if err != nil {
		t.Fatalf("GetStatus after destroy: %v", err)
	}
	if status != StatusStopped {
		t.Fatalf("expected STOPPED after destroy, got %s", status)
	}
}

func TestFakeCreateForSurfacesInjectedFailure(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.FailNextCreate = ggerr.Conflict("iscsi.backstore_conflict", "backstore exists with a different path")

	machine := &types.Machine{ID: "m2", Hostname: "client-2", MACAddress: "52:54:00:11:22:33"}
	image := &types.Image{ID: "img2", FilePath: "/var/lib/ggnet/images/img2.raw"}

	_, err := f.CreateFor(ctx, machine, image, CreateOptions{OrgName: "ggnet"})
	if !ggerr.Is(err, ggerr.KindConflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestIQNFormats(t *testing.T) {
	tgt := TargetIQN("ggnet", 2026, "client-1")
	if tgt != "iqn.2026.ggnet:target-client-1" {
		t.Fatalf("unexpected target IQN: %s", tgt)
	}
	init := InitiatorIQN("ggnet", 2026, "52:54:00:aa:bb:cc")
	if init != "iqn.2026.ggnet:initiator-525400aabbcc" {
		t.Fatalf("unexpected initiator IQN: %s", init)
	}
}

func TestClassifyExitDeadlineIsTransient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	err := classifyExit(ctx, "timed out", errors.New("boom"))
	if !ggerr.Is(err, ggerr.KindTransient) {
		t.Fatalf("expected TransientError, got %v", err)
	}
}
