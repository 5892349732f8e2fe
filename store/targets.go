package store

import (
	"context"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/types"
)

// CreateTarget inserts a new target row with the status the caller set.
func (s *Store) CreateTarget(ctx context.Context, t *types.Target) error {
	t.CreatedAt, t.UpdatedAt = timestamps()
	if err := s.conn(ctx).Create(t).Error; err != nil {
		return ggerr.Wrap(ggerr.KindTransient, "store.create_target", err, "create target")
	}
	return nil
}

// GetTarget loads a target by id.
func (s *Store) GetTarget(ctx context.Context, id string) (*types.Target, error) {
	var t types.Target
	if err := s.conn(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "target", id)
	}
	return &t, nil
}

// GetTargetByMachine loads the most recent target created for a machine.
// No caller in this module uses it; startup reconciliation looks targets up
// by ID through GetTarget.
func (s *Store) GetTargetByMachine(ctx context.Context, machineID string) (*types.Target, error) {
	var t types.Target
	err := s.conn(ctx).Where("machine_id = ?", machineID).Order("created_at desc").First(&t).Error
	if err != nil {
		return nil, notFoundOr(err, "target", machineID)
	}
	return &t, nil
}

// ListActiveTargets returns every target not in a terminal (STOPPED/ERROR)
// state; image archiving uses it to refuse archiving an image in use.
func (s *Store) ListActiveTargets(ctx context.Context) ([]types.Target, error) {
	var ts []types.Target
	err := s.conn(ctx).Where("status NOT IN ?", []types.TargetStatus{types.TargetStatusStopped, types.TargetStatusError}).Find(&ts).Error
	if err != nil {
		return nil, ggerr.Wrap(ggerr.KindTransient, "store.list_targets", err, "list active targets")
	}
	return ts, nil
}

// UpdateTarget persists the full row.
func (s *Store) UpdateTarget(ctx context.Context, t *types.Target) error {
	_, t.UpdatedAt = timestamps()
	if err := s.conn(ctx).Save(t).Error; err != nil {
		return ggerr.Wrap(ggerr.KindTransient, "store.update_target", err, "update target")
	}
	return nil
}

// ClaimTargetStatus performs claim_status on a target row.
func (s *Store) ClaimTargetStatus(ctx context.Context, id string, from, to types.TargetStatus) (bool, error) {
	return ClaimStatus[types.Target](ctx, s, id, from, to)
}
