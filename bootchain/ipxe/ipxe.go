// Package ipxe generates per-machine iPXE boot scripts and places them
// under the TFTP root (spec.md §4.4.1).
package ipxe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/types"
)

// scriptMode is world-readable: the TFTP daemon reads these files as an
// unprivileged service account (spec.md §4.4.1 "set world-readable mode").
const scriptMode = 0o644

// Writer places per-machine iPXE scripts under tftpRoot/machines.
type Writer struct {
	tftpRoot string
}

// New creates a Writer rooted at tftpRoot.
func New(tftpRoot string) *Writer {
	return &Writer{tftpRoot: tftpRoot}
}

// ScriptPath returns the path write_script/remove_script act on for machine,
// keyed by its MAC address with dashes (spec.md §4.4.1).
func (w *Writer) ScriptPath(machine *types.Machine) string {
	return filepath.Join(w.tftpRoot, "machines", macDashes(machine.MACAddress)+".ipxe")
}

// WriteScript renders and atomically places the script for machine+target
// (spec.md §4.4.1 "write_script"). Returns the path written.
func (w *Writer) WriteScript(machine *types.Machine, target *types.Target) (string, error) {
	text := Render(target)
	if ok, reason := Validate(text); !ok {
		return "", ggerr.Fatal("ipxe.invalid_script", fmt.Errorf("generated script failed validation: %s", reason))
	}

	path := w.ScriptPath(machine)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", ggerr.Wrap(ggerr.KindFatal, "ipxe.write_script", err, "create machines dir")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), scriptMode); err != nil {
		return "", ggerr.Wrap(ggerr.KindFatal, "ipxe.write_script", err, "write temp script")
	}
	if err := os.Chmod(tmp, scriptMode); err != nil {
		return "", ggerr.Wrap(ggerr.KindFatal, "ipxe.write_script", err, "chmod temp script")
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", ggerr.Wrap(ggerr.KindFatal, "ipxe.write_script", err, "rename script into place")
	}
	return path, nil
}

// RemoveScript removes the script for machine if present; absence is not an
// error (spec.md §4.4.1 "remove_script").
func (w *Writer) RemoveScript(machine *types.Machine) error {
	err := os.Remove(w.ScriptPath(machine))
	if err != nil && !os.IsNotExist(err) {
		return ggerr.Wrap(ggerr.KindFatal, "ipxe.remove_script", err, "remove script")
	}
	return nil
}

// Render builds the iPXE script text for target (spec.md §4.4.1): set the
// initiator IQN, open the iSCSI session, sanboot the LUN, and on failure
// fall back to the generic boot script and then local disk.
func Render(target *types.Target) string {
	var b strings.Builder
	b.WriteString("#!ipxe\n")
	fmt.Fprintf(&b, "set initiator-iqn %s\n", target.InitiatorIQN)
	fmt.Fprintf(&b, "sanboot --no-describe iscsi:%s:::%d:%s || goto fallback_generic\n",
		target.PortalIP, target.LUNID, target.IQN)
	b.WriteString("goto done\n")
	b.WriteString(":fallback_generic\n")
	b.WriteString("chain boot.ipxe || goto fallback_local\n")
	b.WriteString("goto done\n")
	b.WriteString(":fallback_local\n")
	b.WriteString("sanboot --no-describe --drive 0x80\n")
	b.WriteString(":done\n")
	return b.String()
}

// GenericBootScript is the shared boot.ipxe placed once at the TFTP root
// (spec.md §4.4.1): it chainloads the per-machine script by MAC and falls
// back to local boot if absent.
const GenericBootScript = `#!ipxe
chain machines/${net0/mac:hexhyp}.ipxe || sanboot --no-describe --drive 0x80
`

// Validate reports whether text is a well-formed iPXE boot script
// (spec.md §4.4.1 "validate"): a #!ipxe shebang, a sanboot directive, and a
// non-empty iSCSI URL.
func Validate(text string) (ok bool, reason string) {
	if !strings.HasPrefix(text, "#!ipxe") {
		return false, "missing #!ipxe shebang"
	}
	if !strings.Contains(text, "sanboot") {
		return false, "missing sanboot directive"
	}
	if !strings.Contains(text, "iscsi:") || strings.Contains(text, "iscsi:::") {
		return false, "missing non-empty iSCSI URL"
	}
	return true, ""
}

// macDashes converts a canonical colon-form MAC address to iPXE's
// dash-separated filename convention (spec.md §4.4.1 "mac-with-dashes").
func macDashes(mac string) string {
	return strings.ReplaceAll(strings.ToLower(mac), ":", "-")
}
