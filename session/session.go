// Package session implements the orchestrator: the one component that
// composes the Store, the iSCSI target manager, and the boot-chain
// adapters to drive the session state machine of spec.md §4.5.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ggnet/ggnet-core/bootchain/dhcp"
	"github.com/ggnet/ggnet-core/bootchain/ipxe"
	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/internal/obslog"
	"github.com/ggnet/ggnet-core/iscsi"
	"github.com/ggnet/ggnet-core/progress"
	progsession "github.com/ggnet/ggnet-core/progress/session"
	"github.com/ggnet/ggnet-core/store"
	"github.com/ggnet/ggnet-core/types"
)

var logger = obslog.WithFunc("session.Orchestrator")

// Config carries the values the orchestrator needs beyond its collaborators.
type Config struct {
	OrgName    string
	PortalIP   string
	PortalPort int
	CHAPSecret string
}

// Orchestrator owns start_session/stop_session and startup reconciliation
// (spec.md §4.5). It holds no state of its own beyond its collaborators —
// the Store is the single source of truth.
type Orchestrator struct {
	st      *store.Store
	targets iscsi.TargetManager
	ipxe    *ipxe.Writer
	dhcp    *dhcp.Manager
	cfg     Config
	tracker progress.Tracker
}

// New assembles an Orchestrator from its collaborators. tracker may be nil,
// in which case progress events are discarded.
func New(st *store.Store, targets iscsi.TargetManager, ipxeWriter *ipxe.Writer, dhcpMgr *dhcp.Manager, cfg Config, tracker progress.Tracker) *Orchestrator {
	if tracker == nil {
		tracker = progress.Nop
	}
	return &Orchestrator{st: st, targets: targets, ipxe: ipxeWriter, dhcp: dhcpMgr, cfg: cfg, tracker: tracker}
}

// StartSession runs the five-step start sequence of spec.md §4.5.
func (o *Orchestrator) StartSession(ctx context.Context, machineID, imageID, actor string) (*types.Session, error) {
	var (
		machine *types.Machine
		image   *types.Image
		sess    *types.Session
	)

	// Step 1+2: precondition check and CAS-claim, one transaction.
	err := o.st.WithTx(ctx, func(ctx context.Context) error {
		var err error
		machine, err = o.st.GetMachine(ctx, machineID)
		if err != nil {
			return err
		}
		if machine.Status != types.MachineStatusActive {
			// MAINTENANCE can mean either "claimed by a live session" (a
			// second start on the same machine races the first) or a
			// genuinely inactive machine. GetActiveSessionForMachine
			// disambiguates: a duplicate start is a Conflict (spec.md §7),
			// anything else stays Precondition.
			if _, serr := o.st.GetActiveSessionForMachine(ctx, machineID); serr == nil {
				return ggerr.Conflict("session.already_active", "machine already has a non-terminal session")
			} else if !ggerr.Is(serr, ggerr.KindNotFound) {
				return serr
			}
			return ggerr.Precondition("session.machine_not_active", "machine is not ACTIVE")
		}
		image, err = o.st.GetImage(ctx, imageID)
		if err != nil {
			return err
		}
		if image.Status != types.ImageStatusReady {
			return ggerr.Precondition("session.image_not_ready", "image is not READY")
		}
		if _, err := o.st.GetActiveSessionForMachine(ctx, machineID); err == nil {
			return ggerr.Conflict("session.already_active", "machine already has a non-terminal session")
		} else if !ggerr.Is(err, ggerr.KindNotFound) {
			return err
		}

		sess = &types.Session{
			ID:           uuid.NewString(),
			MachineID:    machineID,
			ImageID:      imageID,
			SessionType:  types.SessionTypeDisklessBoot,
			Status:       types.SessionStatusRequested,
			Actor:        actor,
			StartedAt:    time.Now().UTC(),
			LastActivity: time.Now().UTC(),
		}
		if err := o.st.CreateSession(ctx, sess); err != nil {
			return err
		}

		claimed, err := o.st.ClaimMachineStatus(ctx, machineID, types.MachineStatusActive, types.MachineStatusMaintenance)
		if err != nil {
			return err
		}
		if !claimed {
			return ggerr.Conflict("session.machine_claim_failed", "machine was claimed by a concurrent start")
		}

		// Step 3: move to PROVISIONING before commit so the in-progress
		// session is visible to status queries as soon as this commits.
		sess.Status = types.SessionStatusProvisioning
		return o.st.UpdateSession(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	o.tracker.OnEvent(progsession.Event{Phase: progsession.PhaseProvisioning, SessionID: sess.ID, Status: sess.Status})

	// Step 4: outside the transaction, in order, each step undoable.
	target, err := o.provision(ctx, machine, image)
	if err != nil {
		o.fail(ctx, sess, machine, err)
		return nil, err
	}

	// Step 5: success — new transaction, ACTIVE.
	err = o.st.WithTx(ctx, func(ctx context.Context) error {
		sess.Status = types.SessionStatusActive
		sess.TargetID = target.ID
		sess.LastActivity = time.Now().UTC()
		if err := o.st.UpdateSession(ctx, sess); err != nil {
			return err
		}
		target.Status = types.TargetStatusActive
		return o.st.UpdateTarget(ctx, target)
	})
	if err != nil {
		return nil, err
	}
	o.tracker.OnEvent(progsession.Event{Phase: progsession.PhaseActive, SessionID: sess.ID, Status: sess.Status})
	logger.Infof(ctx, "session %s active for machine %s", sess.ID, machineID)
	return sess, nil
}

// provision performs the four ordered, undoable sub-steps of start_session
// step 4: target create, iPXE script write, DHCP reservation, DHCP reload.
// On any failure it unwinds whatever has already succeeded, in reverse.
func (o *Orchestrator) provision(ctx context.Context, machine *types.Machine, image *types.Image) (target *types.Target, err error) {
	type undoStep struct {
		name string
		undo func() error
	}
	var done []undoStep
	defer func() {
		if err != nil {
			for i := len(done) - 1; i >= 0; i-- {
				if uerr := done[i].undo(); uerr != nil {
					logger.Errorf(ctx, "unwind %s: %v", done[i].name, uerr)
				}
			}
		}
	}()

	target, err = o.targets.CreateFor(ctx, machine, image, iscsi.CreateOptions{
		OrgName: o.cfg.OrgName, PortalIP: o.cfg.PortalIP, PortalPort: o.cfg.PortalPort, CHAPSecret: o.cfg.CHAPSecret,
	})
	if err != nil {
		return nil, err
	}
	target.ID = uuid.NewString()
	if err = o.st.CreateTarget(ctx, target); err != nil {
		return nil, err
	}
	done = append(done, undoStep{"target_create", func() error { return o.targets.Destroy(ctx, target.IQN) }})

	if _, err = o.ipxe.WriteScript(machine, target); err != nil {
		return nil, err
	}
	done = append(done, undoStep{"ipxe_write", func() error { return o.ipxe.RemoveScript(machine) }})

	if err = o.dhcp.AddReservation(ctx, machine); err != nil {
		return nil, err
	}
	done = append(done, undoStep{"dhcp_reserve", func() error { return o.dhcp.RemoveReservation(ctx, machine) }})

	return target, nil
}

// fail marks the session FAILED with the underlying error and restores the
// machine to ACTIVE so a future start can be attempted (spec.md §4.5
// "On any failure in step 4... mark session FAILED").
func (o *Orchestrator) fail(ctx context.Context, sess *types.Session, machine *types.Machine, cause error) {
	code := "session.provision_failed"
	if kind, ok := ggerr.KindOf(cause); ok {
		code = string(kind)
	}
	if err := o.st.WithTx(ctx, func(ctx context.Context) error {
		sess.Status = types.SessionStatusFailed
		sess.FailureCode = code
		sess.FailureError = cause.Error()
		sess.EndReason = "provisioning failed"
		now := time.Now().UTC()
		sess.EndedAt = &now
		if err := o.st.UpdateSession(ctx, sess); err != nil {
			return err
		}
		_, err := o.st.ClaimMachineStatus(ctx, machine.ID, types.MachineStatusMaintenance, types.MachineStatusActive)
		return err
	}); err != nil {
		logger.Errorf(ctx, "recording failed session %s: %v", sess.ID, err)
	}
	o.tracker.OnEvent(progsession.Event{Phase: progsession.PhaseStopped, SessionID: sess.ID, Status: types.SessionStatusFailed, Err: cause.Error()})
}

// StopSession tears down an ACTIVE or PROVISIONING session: DHCP
// reservation, iPXE script, and iSCSI target, in reverse creation order,
// then marks the session STOPPED and the machine ACTIVE again. Teardown
// runs only for a session with a recorded target (TargetID is set when the
// session reaches ACTIVE); a session without one is marked STOPPED with no
// teardown.
func (o *Orchestrator) StopSession(ctx context.Context, sessionID, reason string) error {
	sess, err := o.st.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return nil // idempotent: already stopped
	}

	claimed, err := o.st.ClaimSessionStatus(ctx, sessionID, sess.Status, types.SessionStatusStopping)
	if err != nil {
		return err
	}
	if !claimed {
		if cur, gerr := o.st.GetSession(ctx, sessionID); gerr == nil && cur.Status.Terminal() {
			return nil // idempotent: stopped concurrently
		}
		return ggerr.Conflict("session.stop_claim_failed", "session status changed concurrently")
	}
	o.tracker.OnEvent(progsession.Event{Phase: progsession.PhaseStopping, SessionID: sessionID, Status: types.SessionStatusStopping})

	machine, err := o.st.GetMachine(ctx, sess.MachineID)
	if err != nil {
		return err
	}

	if sess.TargetID != "" {
		target, err := o.st.GetTarget(ctx, sess.TargetID)
		if err != nil && !ggerr.Is(err, ggerr.KindNotFound) {
			return err
		}
		if target != nil {
			if err := o.dhcp.RemoveReservation(ctx, machine); err != nil {
				return err
			}
			if err := o.ipxe.RemoveScript(machine); err != nil {
				return err
			}
			if err := o.targets.Destroy(ctx, target.IQN); err != nil {
				return err
			}
			target.Status = types.TargetStatusStopped
			if err := o.st.UpdateTarget(ctx, target); err != nil {
				return err
			}
		}
	}

	return o.st.WithTx(ctx, func(ctx context.Context) error {
		sess.Status = types.SessionStatusStopped
		sess.EndReason = reason
		now := time.Now().UTC()
		sess.EndedAt = &now
		if err := o.st.UpdateSession(ctx, sess); err != nil {
			return err
		}
		_, err := o.st.ClaimMachineStatus(ctx, machine.ID, types.MachineStatusMaintenance, types.MachineStatusActive)
		if err != nil {
			return err
		}
		o.tracker.OnEvent(progsession.Event{Phase: progsession.PhaseStopped, SessionID: sessionID, Status: types.SessionStatusStopped})
		return nil
	})
}
