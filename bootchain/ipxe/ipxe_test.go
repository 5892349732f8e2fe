package ipxe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ggnet/ggnet-core/types"
)

func testTarget() *types.Target {
	return &types.Target{
		IQN:          "iqn.2026.ggnet:target-client-1",
		InitiatorIQN: "iqn.2026.ggnet:initiator-525400aabbcc",
		PortalIP:     "10.0.0.1",
		LUNID:        0,
	}
}

func TestWriteScriptThenRemoveScript(t *testing.T) {
	root := t.TempDir()
	w := New(root)
	machine := &types.Machine{ID: "m1", MACAddress: "52:54:00:aa:bb:cc"}

	path, err := w.WriteScript(machine, testTarget())
	if err != nil {
		t.Fatalf("WriteScript: %v", err)
	}
	want := filepath.Join(root, "machines", "52-54-00-aa-bb-cc.ipxe")
	if path != want {
		t.Fatalf("path = %s, want %s", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if ok, reason := Validate(string(data)); !ok {
		t.Fatalf("written script failed validation: %s", reason)
	}

	if err := w.RemoveScript(machine); err != nil {
		t.Fatalf("RemoveScript: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected script removed, stat err = %v", err)
	}

	if err := w.RemoveScript(machine); err != nil {
		t.Fatalf("second RemoveScript should be idempotent, got: %v", err)
	}
}

func TestValidateRejectsMissingPieces(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no shebang", "sanboot iscsi:10.0.0.1:::0:iqn\n"},
		{"no sanboot", "#!ipxe\nchain boot.ipxe\n"},
		{"empty iscsi url", "#!ipxe\nsanboot iscsi:::\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if ok, _ := Validate(c.text); ok {
				t.Fatalf("expected validation failure for %q", c.name)
			}
		})
	}
}

func TestGenericBootScriptWithSanbootLineValidates(t *testing.T) {
	full := "#!ipxe\nsanboot iscsi:placeholder\n" + GenericBootScript
	if ok, reason := Validate(full); !ok {
		t.Fatalf("generic boot script combined with a sanboot line should validate: %s", reason)
	}
}
