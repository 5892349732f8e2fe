package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ggnet/ggnet-core/types"
)

var errTxAborted = errors.New("aborted for test")

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestClaimMachineStatusLinearisesStarts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := &types.Machine{
		ID:         uuid.NewString(),
		MACAddress: "52:54:00:aa:bb:cc",
		Hostname:   "client-1",
		Status:     types.MachineStatusActive,
	}
	if err := s.CreateMachine(ctx, m); err != nil {
		t.Fatalf("create machine: %v", err)
	}

	ok, err := s.ClaimMachineStatus(ctx, m.ID, types.MachineStatusActive, types.MachineStatusMaintenance)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !ok {
		t.Fatalf("first claim should succeed, got false")
	}

	ok, err = s.ClaimMachineStatus(ctx, m.ID, types.MachineStatusActive, types.MachineStatusMaintenance)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatalf("second claim against a stale `from` should lose the CAS")
	}
}

func TestGetImageByNameNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetImageByName(ctx, "does-not-exist")
	if err == nil {
		t.Fatal("expected NotFoundError, got nil")
	}
}

func TestEnqueueConversionJobIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	imageID := uuid.NewString()
	job1, err := s.EnqueueConversionJob(ctx, &types.ConversionJob{
		ID:      uuid.NewString(),
		ImageID: imageID,
		Status:  types.ConversionJobPending,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job2, err := s.EnqueueConversionJob(ctx, &types.ConversionJob{
		ID:      uuid.NewString(),
		ImageID: imageID,
		Status:  types.ConversionJobPending,
	})
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}

	if job1.ID != job2.ID {
		t.Fatalf("re-enqueueing the same image should return the existing job, got %s and %s", job1.ID, job2.ID)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	machineID := uuid.NewString()
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.CreateMachine(ctx, &types.Machine{
			ID:         machineID,
			MACAddress: "52:54:00:11:22:33",
			Hostname:   "rollback-test",
			Status:     types.MachineStatusActive,
		}); err != nil {
			return err
		}
		return errTxAborted
	})
	if err == nil {
		t.Fatal("expected WithTx to propagate the callback error")
	}

	if _, err := s.GetMachine(ctx, machineID); err == nil {
		t.Fatal("machine insert should have rolled back")
	}
}
