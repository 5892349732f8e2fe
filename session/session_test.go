package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ggnet/ggnet-core/bootchain/dhcp"
	"github.com/ggnet/ggnet-core/bootchain/ipxe"
	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/iscsi"
	"github.com/ggnet/ggnet-core/store"
	"github.com/ggnet/ggnet-core/types"
)

type testEnv struct {
	orch    *Orchestrator
	st      *store.Store
	fake    *iscsi.Fake
	ipxeDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	dsn := filepath.Join(root, "ggnet.sqlite3")
	st, err := store.Open(dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	tftpRoot := filepath.Join(root, "tftp")
	if err := os.MkdirAll(filepath.Join(tftpRoot, "machines"), 0o755); err != nil {
		t.Fatalf("mkdir tftp root: %v", err)
	}

	fake := iscsi.NewFake()
	writer := ipxe.New(tftpRoot)
	dhcpMgr := dhcp.New(dhcp.Config{ConfigPath: filepath.Join(root, "dhcpd.conf"), TFTPHost: "10.0.0.1"})

	orch := New(st, fake, writer, dhcpMgr, Config{OrgName: "ggnet", PortalIP: "10.0.0.1", PortalPort: 3260}, nil)
	return &testEnv{orch: orch, st: st, fake: fake, ipxeDir: tftpRoot}
}

func seedMachineAndImage(t *testing.T, st *store.Store) (*types.Machine, *types.Image) {
	t.Helper()
	ctx := context.Background()
	machine := &types.Machine{ID: "m1", Hostname: "client-1", MACAddress: "52:54:00:aa:bb:cc", IPAddress: "10.0.0.50", Status: types.MachineStatusActive}
	if err := st.CreateMachine(ctx, machine); err != nil {
		t.Fatalf("create machine: %v", err)
	}
	image := &types.Image{ID: "img1", Name: "win11-base", FilePath: "/var/lib/ggnet/images/img1.raw", Status: types.ImageStatusReady}
	if err := st.CreateImage(ctx, image); err != nil {
		t.Fatalf("create image: %v", err)
	}
	return machine, image
}

func TestStartSessionReachesActiveAndWritesBootChain(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	machine, image := seedMachineAndImage(t, env.st)

	sess, err := env.orch.StartSession(ctx, machine.ID, image.ID, "operator")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if sess.Status != types.SessionStatusActive {
		t.Fatalf("expected ACTIVE, got %s", sess.Status)
	}

	scriptPath := filepath.Join(env.ipxeDir, "machines", "52-54-00-aa-bb-cc.ipxe")
	if _, err := os.Stat(scriptPath); err != nil {
		t.Fatalf("expected ipxe script written: %v", err)
	}

	reloaded, err := env.st.GetMachine(ctx, machine.ID)
	if err != nil {
		t.Fatalf("GetMachine: %v", err)
	}
	if reloaded.Status != types.MachineStatusMaintenance {
		t.Fatalf("expected machine claimed into MAINTENANCE while session is active, got %s", reloaded.Status)
	}
}

func TestStartSessionRejectsInactiveMachine(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	machine, image := seedMachineAndImage(t, env.st)
	machine.Status = types.MachineStatusInactive
	if err := env.st.UpdateMachine(ctx, machine); err != nil {
		t.Fatalf("UpdateMachine: %v", err)
	}

	_, err := env.orch.StartSession(ctx, machine.ID, image.ID, "operator")
	if !ggerr.Is(err, ggerr.KindPrecondition) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

func TestStartSessionRejectsConcurrentStartOnSameMachine(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	machine, image := seedMachineAndImage(t, env.st)

	if _, err := env.orch.StartSession(ctx, machine.ID, image.ID, "operator"); err != nil {
		t.Fatalf("first StartSession: %v", err)
	}
	_, err := env.orch.StartSession(ctx, machine.ID, image.ID, "operator")
	if !ggerr.Is(err, ggerr.KindConflict) {
		t.Fatalf("expected ConflictError for concurrent start, got %v", err)
	}
}

func TestStartSessionUnwindsOnTargetCreateFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	machine, image := seedMachineAndImage(t, env.st)
	env.fake.FailNextCreate = ggerr.Fatal("iscsi.boom", nil)

	_, err := env.orch.StartSession(ctx, machine.ID, image.ID, "operator")
	if err == nil {
		t.Fatalf("expected StartSession to fail")
	}

	reloaded, gerr := env.st.GetMachine(ctx, machine.ID)
	if gerr != nil {
		t.Fatalf("GetMachine: %v", gerr)
	}
	if reloaded.Status != types.MachineStatusActive {
		t.Fatalf("expected machine restored to ACTIVE after failed provisioning, got %s", reloaded.Status)
	}

	scriptPath := filepath.Join(env.ipxeDir, "machines", "52-54-00-aa-bb-cc.ipxe")
	if _, statErr := os.Stat(scriptPath); !os.IsNotExist(statErr) {
		t.Fatalf("expected no ipxe script written when target creation failed")
	}
}

func TestStopSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	machine, image := seedMachineAndImage(t, env.st)

	sess, err := env.orch.StartSession(ctx, machine.ID, image.ID, "operator")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := env.orch.StopSession(ctx, sess.ID, "test teardown"); err != nil {
		t.Fatalf("first StopSession: %v", err)
	}
	if err := env.orch.StopSession(ctx, sess.ID, "test teardown again"); err != nil {
		t.Fatalf("second StopSession should be idempotent, got: %v", err)
	}

	reloaded, err := env.st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if reloaded.Status != types.SessionStatusStopped {
		t.Fatalf("expected STOPPED, got %s", reloaded.Status)
	}

	scriptPath := filepath.Join(env.ipxeDir, "machines", "52-54-00-aa-bb-cc.ipxe")
	if _, statErr := os.Stat(scriptPath); !os.IsNotExist(statErr) {
		t.Fatalf("expected ipxe script removed after stop")
	}
}

func TestReconcileStopsSessionMissingBootScript(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	machine, image := seedMachineAndImage(t, env.st)

	sess, err := env.orch.StartSession(ctx, machine.ID, image.ID, "operator")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	scriptPath := filepath.Join(env.ipxeDir, "machines", "52-54-00-aa-bb-cc.ipxe")
	if err := os.Remove(scriptPath); err != nil {
		t.Fatalf("remove script: %v", err)
	}

	if err := env.orch.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	reloaded, err := env.st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if reloaded.Status != types.SessionStatusStopped {
		t.Fatalf("expected reconciliation to stop the session, got %s", reloaded.Status)
	}
	if reloaded.EndReason != "reconciliation: missing boot script" {
		t.Fatalf("unexpected end reason: %s", reloaded.EndReason)
	}
}
