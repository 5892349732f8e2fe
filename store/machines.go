package store

import (
	"context"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/types"
)

// CreateMachine inserts a new machine row (spec.md §4.5 "machine registers").
func (s *Store) CreateMachine(ctx context.Context, m *types.Machine) error {
	m.CreatedAt, m.UpdatedAt = timestamps()
	if err := s.conn(ctx).Create(m).Error; err != nil {
		return ggerr.Wrap(ggerr.KindTransient, "store.create_machine", err, "create machine")
	}
	return nil
}

// GetMachine loads a machine by id.
func (s *Store) GetMachine(ctx context.Context, id string) (*types.Machine, error) {
	var m types.Machine
	if err := s.conn(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "machine", id)
	}
	return &m, nil
}

// GetMachineByMAC loads a machine by its normalized MAC address. No caller
// in this module uses it; the boot-chain adapters receive the machine row
// from the session orchestrator.
func (s *Store) GetMachineByMAC(ctx context.Context, mac string) (*types.Machine, error) {
	var m types.Machine
	if err := s.conn(ctx).Where("mac_address = ?", mac).First(&m).Error; err != nil {
		return nil, notFoundOr(err, "machine", mac)
	}
	return &m, nil
}

// ListMachines returns every registered machine.
func (s *Store) ListMachines(ctx context.Context) ([]types.Machine, error) {
	var ms []types.Machine
	if err := s.conn(ctx).Order("hostname").Find(&ms).Error; err != nil {
		return nil, ggerr.Wrap(ggerr.KindTransient, "store.list_machines", err, "list machines")
	}
	return ms, nil
}

// UpdateMachine persists the full row.
func (s *Store) UpdateMachine(ctx context.Context, m *types.Machine) error {
	_, m.UpdatedAt = timestamps()
	if err := s.conn(ctx).Save(m).Error; err != nil {
		return ggerr.Wrap(ggerr.KindTransient, "store.update_machine", err, "update machine")
	}
	return nil
}

// ClaimMachineStatus performs claim_status on a machine row, used to
// linearise concurrent session starts on the same machine (spec.md §4.5
// step 2, §8 "at most one start can be past step 2 at any time").
func (s *Store) ClaimMachineStatus(ctx context.Context, id string, from, to types.MachineStatus) (bool, error) {
	return ClaimStatus[types.Machine](ctx, s, id, from, to)
}
