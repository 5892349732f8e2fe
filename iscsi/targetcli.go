package iscsi

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/internal/obslog"
	"github.com/ggnet/ggnet-core/types"
	"github.com/ggnet/ggnet-core/utils"
)

// statusPollInterval is how often CreateFor re-checks the daemon's reported
// status after saveconfig, while waiting for it to report the target ACTIVE.
const statusPollInterval = 200 * time.Millisecond

var logger = obslog.WithFunc("iscsi.TargetCLI")

// TargetCLI drives a targetcli-compatible configurator as a subprocess.
// Each exported method is idempotent per spec.md §4.3; CreateFor unwinds
// every completed step on failure.
type TargetCLI struct {
	binary  string
	timeout time.Duration
}

var _ TargetManager = (*TargetCLI)(nil)

// NewTargetCLI creates a TargetCLI bound to the given binary path (e.g.
// "targetcli") and per-call timeout.
func NewTargetCLI(binary string, timeout time.Duration) *TargetCLI {
	return &TargetCLI{binary: binary, timeout: timeout}
}

// completedStep records one successfully-performed sub-step so CreateFor
// can unwind in reverse order on a later failure.
type completedStep struct {
	name string
	undo func(ctx context.Context) error
}

// CreateFor performs the five sub-steps of spec.md §4.3 in order: backstore,
// target, LUN, ACL, portal. Any failure unwinds every step already
// performed, in reverse, before the originating error is reported.
func (t *TargetCLI) CreateFor(ctx context.Context, machine *types.Machine, image *types.Image, opts CreateOptions) (target *types.Target, err error) {
	backstoreName := "machine_" + machine.ID
	iqn := TargetIQN(opts.OrgName, CurrentYear(), slug(machine.Hostname, machine.ID))
	initiatorIQN := InitiatorIQN(opts.OrgName, CurrentYear(), machine.MACAddress)

	var done []completedStep
	defer func() {
		if err != nil {
			t.unwind(ctx, done)
		}
	}()

	if err = t.ensureBackstore(ctx, backstoreName, image.FilePath); err != nil {
		return nil, err
	}
	done = append(done, completedStep{"backstore", func(ctx context.Context) error {
		return t.deleteBackstore(ctx, backstoreName)
	}})

	if err = t.createTarget(ctx, iqn); err != nil {
		return nil, err
	}
	done = append(done, completedStep{"target", func(ctx context.Context) error {
		return t.deleteTarget(ctx, iqn)
	}})

	if err = t.attachLUN(ctx, iqn, backstoreName); err != nil {
		return nil, err
	}
	done = append(done, completedStep{"lun", func(ctx context.Context) error {
		return nil // deleting the target (above) removes its LUNs
	}})

	if err = t.addACL(ctx, iqn, initiatorIQN); err != nil {
		return nil, err
	}
	done = append(done, completedStep{"acl", func(ctx context.Context) error {
		return nil // deleting the target removes its ACLs
	}})

	if err = t.bindPortal(ctx, iqn, opts.PortalIP, opts.PortalPort); err != nil {
		return nil, err
	}
	done = append(done, completedStep{"portal", func(ctx context.Context) error {
		return nil // deleting the target removes its portal binding
	}})

	if err = t.saveConfig(ctx); err != nil {
		return nil, err
	}

	// saveconfig returning success only means the daemon accepted the
	// config; confirm it actually brought the target up before reporting
	// success to the caller.
	if err = utils.WaitFor(ctx, t.timeout, statusPollInterval, func() (bool, error) {
		status, statusErr := t.GetStatus(ctx, iqn)
		if statusErr != nil {
			return false, statusErr
		}
		return status == StatusActive, nil
	}); err != nil {
		return nil, ggerr.Wrap(ggerr.KindTransient, "iscsi.activation_timeout", err, "target did not report ACTIVE after saveconfig")
	}

	return &types.Target{
		IQN:          iqn,
		MachineID:    machine.ID,
		ImageID:      image.ID,
		ImagePath:    image.FilePath,
		InitiatorIQN: initiatorIQN,
		LUNID:        0,
		PortalIP:     opts.PortalIP,
		PortalPort:   opts.PortalPort,
		CHAPSecret:   opts.CHAPSecret,
		Status:       types.TargetStatusActive,
	}, nil
}

// unwind reverses every completed step, logging (not failing) individual
// undo errors — CreateFor has already failed and must still report the
// originating cause.
func (t *TargetCLI) unwind(ctx context.Context, done []completedStep) {
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if err := step.undo(ctx); err != nil {
			logger.Errorf(ctx, "unwind %s: %v", step.name, err)
		}
	}
}

// Destroy removes every component of iqn. Idempotent: absent components are
// not an error (spec.md §4.3 "destroy is idempotent").
func (t *TargetCLI) Destroy(ctx context.Context, iqn string) error {
	if err := t.deleteTarget(ctx, iqn); err != nil && !ggerr.Is(err, ggerr.KindNotFound) {
		return err
	}
	return t.saveConfig(ctx)
}

// GetStatus queries the daemon directly; it never trusts the Store's
// recorded status (spec.md §4.3 "Status reads are derived").
func (t *TargetCLI) GetStatus(ctx context.Context, iqn string) (Status, error) {
	out, err := t.run(ctx, "/iscsi/"+iqn, "status")
	if err != nil {
		if ggerr.Is(err, ggerr.KindNotFound) {
			return StatusStopped, nil
		}
		return StatusError, err
	}
	if strings.Contains(out, "enabled") {
		return StatusActive, nil
	}
	return StatusStopped, nil
}

func (t *TargetCLI) ensureBackstore(ctx context.Context, name, path string) error {
	existing, err := t.run(ctx, "/backstores/fileio", "ls")
	if err == nil && strings.Contains(existing, name) {
		info, infoErr := t.run(ctx, "/backstores/fileio/"+name, "info")
		if infoErr == nil && !strings.Contains(info, path) {
			return ggerr.Conflict("iscsi.backstore_conflict", "backstore "+name+" exists with a different path")
		}
		return nil
	}
	_, err = t.run(ctx, "/backstores/fileio", "create", "name="+name, "file_or_dev="+path)
	return err
}

func (t *TargetCLI) deleteBackstore(ctx context.Context, name string) error {
	_, err := t.run(ctx, "/backstores/fileio", "delete", name)
	return ignoreNotFound(err)
}

func (t *TargetCLI) createTarget(ctx context.Context, iqn string) error {
	_, err := t.run(ctx, "/iscsi", "create", iqn)
	return err
}

func (t *TargetCLI) deleteTarget(ctx context.Context, iqn string) error {
	_, err := t.run(ctx, "/iscsi", "delete", iqn)
	return ignoreNotFound(err)
}

func (t *TargetCLI) attachLUN(ctx context.Context, iqn, backstoreName string) error {
	_, err := t.run(ctx, "/iscsi/"+iqn+"/tpg1/luns", "create", "/backstores/fileio/"+backstoreName)
	return err
}

func (t *TargetCLI) addACL(ctx context.Context, iqn, initiatorIQN string) error {
	_, err := t.run(ctx, "/iscsi/"+iqn+"/tpg1/acls", "create", initiatorIQN)
	return err
}

func (t *TargetCLI) bindPortal(ctx context.Context, iqn, portalIP string, portalPort int) error {
	_, err := t.run(ctx, "/iscsi/"+iqn+"/tpg1/portals", "create", portalIP, strconv.Itoa(portalPort))
	return err
}

func (t *TargetCLI) saveConfig(ctx context.Context) error {
	_, err := t.run(ctx, "/", "saveconfig")
	return err
}

// run invokes the configurator with args, treating "No such" style output
// from a tolerant idempotent delete as NotFoundError rather than failing.
func (t *TargetCLI) run(ctx context.Context, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var lastOut string
	err := doWithRetry(cctx, func() error {
		cmd := exec.CommandContext(cctx, t.binary, args...) //nolint:gosec // binary+args are internally constructed
		out, runErr := cmd.CombinedOutput()
		lastOut = strings.TrimSpace(string(out))
		if runErr == nil {
			return nil
		}
		if strings.Contains(lastOut, "No such") || strings.Contains(lastOut, "not found") {
			return ggerr.NotFound("iscsi.not_found", lastOut)
		}
		return classifyExit(cctx, lastOut, runErr)
	})
	return lastOut, err
}

func ignoreNotFound(err error) error {
	if ggerr.Is(err, ggerr.KindNotFound) {
		return nil
	}
	return err
}

// slug derives a filesystem/IQN-safe identifier from a hostname, falling
// back to the machine id if the hostname is empty.
func slug(hostname, machineID string) string {
	if hostname == "" {
		return machineID
	}
	return strings.ToLower(strings.ReplaceAll(hostname, " ", "-"))
}
