package session

import (
	"context"
	"os"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/iscsi"
	"github.com/ggnet/ggnet-core/types"
)

// Reconcile enumerates every non-terminal session at process start and
// verifies its three post-conditions hold: the Target Manager reports the
// target ACTIVE, the iPXE script is present, and nothing else contradicts
// an ACTIVE session. Any failing session is driven to STOPPING and through
// the normal stop path (spec.md §4.5 "Recovery at startup").
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	sessions, err := o.st.ListActiveSessions(ctx)
	if err != nil {
		return err
	}

	for i := range sessions {
		sess := &sessions[i]
		if sess.Status != types.SessionStatusActive {
			// A session caught mid-PROVISIONING when the process died never
			// completed step 4/5; it has no confirmed post-conditions to
			// check, so it goes straight to the stop path.
			o.stopWithReason(ctx, sess.ID, "reconciliation: interrupted during provisioning")
			continue
		}

		reason, ok := o.checkPostConditions(ctx, sess)
		if !ok {
			o.stopWithReason(ctx, sess.ID, reason)
		}
	}
	return nil
}

// checkPostConditions verifies the three things an ACTIVE session promises:
// the target is reported ACTIVE by the daemon, the machine's iPXE script
// exists, and the target row itself still exists (spec.md §8 scenario (f)).
func (o *Orchestrator) checkPostConditions(ctx context.Context, sess *types.Session) (reason string, ok bool) {
	if sess.TargetID == "" {
		return "reconciliation: active session has no target", false
	}
	target, err := o.st.GetTarget(ctx, sess.TargetID)
	if err != nil {
		if ggerr.Is(err, ggerr.KindNotFound) {
			return "reconciliation: missing target row", false
		}
		logger.Errorf(ctx, "reconcile: load target for session %s: %v", sess.ID, err)
		return "reconciliation: target lookup failed", false
	}

	status, err := o.targets.GetStatus(ctx, target.IQN)
	if err != nil {
		logger.Errorf(ctx, "reconcile: get status for target %s: %v", target.IQN, err)
		return "reconciliation: target status check failed", false
	}
	if status != iscsi.StatusActive {
		return "reconciliation: target not ACTIVE", false
	}

	machine, err := o.st.GetMachine(ctx, sess.MachineID)
	if err != nil {
		return "reconciliation: missing machine row", false
	}
	if _, err := os.Stat(o.ipxe.ScriptPath(machine)); err != nil {
		return "reconciliation: missing boot script", false
	}

	return "", true
}

// stopWithReason calls StopSession and logs (rather than propagates) any
// error, since reconciliation must make a best-effort pass over every
// session rather than abort on the first failure.
func (o *Orchestrator) stopWithReason(ctx context.Context, sessionID, reason string) {
	if err := o.StopSession(ctx, sessionID, reason); err != nil {
		logger.Errorf(ctx, "reconcile: stop session %s: %v", sessionID, err)
	}
}
