package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ggnet/ggnet-core/bootchain/dhcp"
	"github.com/ggnet/ggnet-core/bootchain/ipxe"
	"github.com/ggnet/ggnet-core/config"
	"github.com/ggnet/ggnet-core/images"
	"github.com/ggnet/ggnet-core/iscsi"
	"github.com/ggnet/ggnet-core/session"
	"github.com/ggnet/ggnet-core/store"
	"github.com/ggnet/ggnet-core/types"
)

func newTestServer(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RootDir = t.TempDir()
	cfg.DatabaseDSN = filepath.Join(cfg.RootDir, "ggnet.sqlite3")
	cfg.TFTPRoot = filepath.Join(cfg.RootDir, "tftp")
	cfg.PortalIP = "10.0.0.1"
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	pipeline := images.New(cfg, st)
	writer := ipxe.New(cfg.TFTPRoot)
	dhcpMgr := dhcp.New(dhcp.Config{ConfigPath: filepath.Join(cfg.RootDir, "dhcpd.conf"), TFTPHost: cfg.PortalIP})
	orch := session.New(st, iscsi.NewFake(), writer, dhcpMgr, session.Config{OrgName: cfg.OrgName, PortalIP: cfg.PortalIP, PortalPort: cfg.PortalPort}, nil)

	resolveActor := func(r *http.Request) (Actor, bool) {
		role := r.Header.Get("X-Test-Role")
		if role == "" {
			return Actor{}, false
		}
		return Actor{Username: "tester", Role: types.Role(role)}, true
	}

	router := NewRouter(Deps{Store: st, Pipeline: pipeline, Orchestrator: orch, IPXE: writer, Hub: NewSessionHub(), ResolveActor: resolveActor})
	return router, st
}

func TestCreateMachineRequiresOperatorRole(t *testing.T) {
	router, _ := newTestServer(t)

	body, _ := json.Marshal(createMachineRequest{Hostname: "client-1", MACAddress: "52:54:00:aa:bb:cc", IPAddress: "10.0.0.50"})
	req := httptest.NewRequest(http.MethodPost, "/machines", bytes.NewReader(body))
	req.Header.Set("X-Test-Role", "VIEWER")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for VIEWER creating a machine, got %d", rec.Code)
	}
}

func TestCreateAndListMachines(t *testing.T) {
	router, _ := newTestServer(t)

	body, _ := json.Marshal(createMachineRequest{Hostname: "client-1", MACAddress: "52:54:00:aa:bb:cc", IPAddress: "10.0.0.50"})
	req := httptest.NewRequest(http.MethodPost, "/machines", bytes.NewReader(body))
	req.Header.Set("X-Test-Role", "OPERATOR")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/machines", nil)
	req.Header.Set("X-Test-Role", "VIEWER")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var machines []types.Machine
	if err := json.Unmarshal(rec.Body.Bytes(), &machines); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(machines) != 1 || machines[0].Hostname != "client-1" {
		t.Fatalf("unexpected machines list: %+v", machines)
	}
}

func TestUnauthenticatedRequestIsRejected(t *testing.T) {
	router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/machines", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no actor header, got %d", rec.Code)
	}
}

func TestStartSessionEndToEndThroughHTTP(t *testing.T) {
	router, st := newTestServer(t)
	ctx := context.Background()

	machine := &types.Machine{ID: "m1", Hostname: "client-1", MACAddress: "52:54:00:aa:bb:cc", IPAddress: "10.0.0.50", Status: types.MachineStatusActive}
	if err := st.CreateMachine(ctx, machine); err != nil {
		t.Fatalf("create machine: %v", err)
	}
	image := &types.Image{ID: "img1", Name: "win11-base", FilePath: "/tmp/img1.raw", Status: types.ImageStatusReady}
	if err := st.CreateImage(ctx, image); err != nil {
		t.Fatalf("create image: %v", err)
	}

	body, _ := json.Marshal(startSessionRequest{MachineID: machine.ID, ImageID: image.ID})
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	req.Header.Set("X-Test-Role", "OPERATOR")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var sess types.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sess.Status != types.SessionStatusActive {
		t.Fatalf("expected ACTIVE, got %s", sess.Status)
	}
}
