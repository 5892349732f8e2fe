package iscsi

import (
	"context"
	"sync"

	"github.com/ggnet/ggnet-core/types"
	"github.com/ggnet/ggnet-core/utils"
)

// Fake is an in-memory TargetManager that records calls, used to drive the
// session orchestrator's tests without a real targetcli binary (spec.md §8
// "Model each daemon as an interface... a fake one that records calls").
type Fake struct {
	mu      sync.Mutex
	targets map[string]*types.Target
	Calls   []string

	// FailNextCreate, when set, makes the next CreateFor call return this
	// error instead of succeeding — used to exercise compensation paths.
	FailNextCreate error
}

var _ TargetManager = (*Fake)(nil)

// NewFake creates an empty Fake target manager.
func NewFake() *Fake {
	return &Fake{targets: map[string]*types.Target{}}
}

func (f *Fake) CreateFor(_ context.Context, machine *types.Machine, image *types.Image, opts CreateOptions) (*types.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "CreateFor:"+machine.ID)

	if f.FailNextCreate != nil {
		err := f.FailNextCreate
		f.FailNextCreate = nil
		return nil, err
	}

	iqn := TargetIQN(opts.OrgName, CurrentYear(), slug(machine.Hostname, machine.ID))
	target := &types.Target{
		IQN:          iqn,
		MachineID:    machine.ID,
		ImageID:      image.ID,
		ImagePath:    image.FilePath,
		InitiatorIQN: InitiatorIQN(opts.OrgName, CurrentYear(), machine.MACAddress),
		LUNID:        0,
		PortalIP:     opts.PortalIP,
		PortalPort:   opts.PortalPort,
		CHAPSecret:   opts.CHAPSecret,
		Status:       types.TargetStatusActive,
	}
	f.targets[iqn] = target
	return target, nil
}

func (f *Fake) Destroy(_ context.Context, iqn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "Destroy:"+iqn)
	delete(f.targets, iqn) // idempotent: deleting an absent key is a no-op
	return nil
}

func (f *Fake) GetStatus(_ context.Context, iqn string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.targets[iqn]; ok {
		return StatusActive, nil
	}
	return StatusStopped, nil
}

// Get returns a copy of the recorded target for iqn, if any — a test-only
// accessor that hands callers their own copy rather than a pointer into the
// Fake's internal map.
func (f *Fake) Get(iqn string) (types.Target, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := utils.LookupCopy(f.targets, iqn)
	return t, err == nil
}
