package dhcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/insomniacslk/dhcp/iana"

	"github.com/ggnet/ggnet-core/types"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dhcpd.conf")
	cfg := Config{ConfigPath: path, TFTPHost: "10.0.0.1"}
	return New(cfg), path
}

func TestAddReservationPreservesSurroundingConfig(t *testing.T) {
	m, path := newTestManager(t)
	seed := "# unmanaged header\nsubnet 10.0.0.0 netmask 255.255.255.0 {}\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	machine := &types.Machine{ID: "m1", Hostname: "client-1", MACAddress: "52:54:00:aa:bb:cc", IPAddress: "10.0.0.50"}
	if err := m.AddReservation(context.Background(), machine); err != nil {
		t.Fatalf("AddReservation: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(data)

	if !strings.Contains(text, "# unmanaged header") {
		t.Fatalf("verbatim prefix lost:\n%s", text)
	}
	if !strings.Contains(text, beginSentinel) || !strings.Contains(text, endSentinel) {
		t.Fatalf("missing sentinels:\n%s", text)
	}
	if !strings.Contains(text, "host client-1 { hardware ethernet 52:54:00:aa:bb:cc; fixed-address 10.0.0.50; }") {
		t.Fatalf("missing reservation line:\n%s", text)
	}
	if !strings.Contains(text, "next-server 10.0.0.1;") {
		t.Fatalf("missing next-server directive:\n%s", text)
	}
}

func TestAddReservationIsIdempotent(t *testing.T) {
	m, path := newTestManager(t)
	machine := &types.Machine{ID: "m1", Hostname: "client-1", MACAddress: "52:54:00:aa:bb:cc", IPAddress: "10.0.0.50"}

	if err := m.AddReservation(context.Background(), machine); err != nil {
		t.Fatalf("first AddReservation: %v", err)
	}
	if err := m.AddReservation(context.Background(), machine); err != nil {
		t.Fatalf("second AddReservation: %v", err)
	}

	data, _ := os.ReadFile(path)
	if strings.Count(string(data), "host client-1") != 1 {
		t.Fatalf("expected exactly one reservation line, got:\n%s", string(data))
	}
}

func TestRemoveReservationIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	machine := &types.Machine{ID: "m1", Hostname: "client-1", MACAddress: "52:54:00:aa:bb:cc", IPAddress: "10.0.0.50"}

	if err := m.AddReservation(context.Background(), machine); err != nil {
		t.Fatalf("AddReservation: %v", err)
	}
	if err := m.RemoveReservation(context.Background(), machine); err != nil {
		t.Fatalf("first RemoveReservation: %v", err)
	}
	if err := m.RemoveReservation(context.Background(), machine); err != nil {
		t.Fatalf("second RemoveReservation should be idempotent, got: %v", err)
	}
}

func TestLoaderForMatchesArchTable(t *testing.T) {
	cases := []struct {
		arch iana.Arch
		want string
	}{
		{iana.INTEL_X86PC, "undionly.kpxe"},
		{iana.EFI_IA32, "ipxe32.efi"},
		{iana.EFI_BC, "snponly.efi"},
		{iana.EFI_X86_64, "snponly.efi"},
		{iana.Arch(0xFFFF), "ipxe.efi"},
	}
	for _, c := range cases {
		if got := LoaderFor(c.arch); got != c.want {
			t.Errorf("LoaderFor(%v) = %s, want %s", c.arch, got, c.want)
		}
	}
}
