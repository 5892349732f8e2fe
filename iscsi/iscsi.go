// Package iscsi wraps the iSCSI target daemon's command-line configurator
// (spec.md §4.3, module C "Target manager"). create_for performs five
// sub-steps (backstore, target, LUN, ACL, portal) that must all succeed;
// any failure unwinds the steps already performed, in reverse order.
package iscsi

import (
	"context"

	"github.com/ggnet/ggnet-core/types"
)

// Status is the daemon-derived view of a target, synthesised without
// trusting the Store's recorded status (spec.md §4.3 "get_status").
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusStopped Status = "STOPPED"
	StatusError   Status = "ERROR"
)

// TargetManager is the interface the session orchestrator drives; the real
// implementation shells out to a CLI configurator, a fake implementation
// records calls for tests (spec.md §8 "Subprocess-driven privileged
// daemons... two implementations").
type TargetManager interface {
	// CreateFor builds a target from scratch for machine+image, returning
	// the populated Target (IQN, LUN, portal) ready to persist.
	CreateFor(ctx context.Context, machine *types.Machine, image *types.Image, opts CreateOptions) (*types.Target, error)
	// Destroy tears down every component of iqn. Idempotent: a target that
	// does not exist is not an error (spec.md §4.3 "destroy is idempotent").
	Destroy(ctx context.Context, iqn string) error
	// GetStatus queries the daemon directly for target presence, portal
	// state, and connected initiators.
	GetStatus(ctx context.Context, iqn string) (Status, error)
}

// CreateOptions carries the values CreateFor needs beyond machine/image that
// don't belong on either persisted entity.
type CreateOptions struct {
	OrgName    string
	PortalIP   string
	PortalPort int
	CHAPSecret string // recorded on the Target only; CreateFor configures no CHAP on the daemon
}
