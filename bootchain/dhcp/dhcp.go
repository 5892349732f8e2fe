// Package dhcp maintains a sentinel-bracketed managed section inside an
// isc-dhcp-server style configuration file: global option-93 architecture
// steering plus one host reservation per machine (spec.md §4.4.2).
package dhcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/insomniacslk/dhcp/iana"

	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/lock"
	"github.com/ggnet/ggnet-core/lock/flock"
	"github.com/ggnet/ggnet-core/types"
	"github.com/ggnet/ggnet-core/utils"
)

const (
	beginSentinel = "# BEGIN GGNET MANAGED"
	endSentinel   = "# END GGNET MANAGED"
)

// archLoader maps a DHCP option-93 client-architecture code to the boot
// loader filename it must be served (spec.md §4.4.2 table). Keys are the
// typed architecture constants from insomniacslk/dhcp/iana rather than bare
// integers, so the table reads against the same registry a DHCP server
// parsing option 93 would use.
var archLoader = map[iana.Arch]string{
	iana.INTEL_X86PC: "undionly.kpxe", // 0x0000, legacy BIOS
	iana.EFI_IA32:    "ipxe32.efi",    // 0x0006, UEFI IA32
	iana.EFI_BC:      "snponly.efi",   // 0x0007, UEFI x64 — mandatory for Secure Boot/Windows 11
	iana.EFI_X86_64:  "snponly.efi",   // 0x0009, UEFI x64 HTTP
}

// defaultLoader is served for any architecture code absent from archLoader.
const defaultLoader = "ipxe.efi"

// LoaderFor returns the filename DHCP option "filename" must carry for the
// given option-93 architecture code (spec.md §4.4.2).
func LoaderFor(arch iana.Arch) string {
	if loader, ok := archLoader[arch]; ok {
		return loader
	}
	return defaultLoader
}

// Config is the subset of adapter configuration the Manager needs.
type Config struct {
	ConfigPath    string
	ReloadCommand []string
	TFTPHost      string
	ReloadTimeout time.Duration
}

// Manager owns the managed section of one DHCP configuration file.
type Manager struct {
	cfg   Config
	mu    lock.Locker
	order []string // machine IDs, insertion order, for deterministic output
}

// New creates a Manager guarded by a flock on cfg.ConfigPath+".lock" so
// concurrent rewrites from multiple processes serialise (spec.md §4.4.2
// "single atomic rewrite").
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg, mu: flock.New(cfg.ConfigPath + ".lock")}
}

// reservation is one host entry inside the managed section.
type reservation struct {
	hostname string
	mac      string
	ip       string
}

// AddReservation idempotently adds or replaces machine's host entry and
// rewrites the managed section (spec.md §4.4.2 "add_reservation").
func (m *Manager) AddReservation(ctx context.Context, machine *types.Machine) error {
	return m.rewrite(ctx, func(res map[string]reservation) {
		hostname := sanitizeHostname(machine.Hostname, machine.ID)
		res[hostname] = reservation{hostname: hostname, mac: machine.MACAddress, ip: machine.IPAddress}
	})
}

// RemoveReservation idempotently removes machine's host entry; absence is
// not an error (spec.md §4.4.2 "remove_reservation").
func (m *Manager) RemoveReservation(ctx context.Context, machine *types.Machine) error {
	return m.rewrite(ctx, func(res map[string]reservation) {
		delete(res, sanitizeHostname(machine.Hostname, machine.ID))
	})
}

// rewrite performs the full read-mutate-write-reload cycle under the
// cross-process lock: read whole file, parse the managed section into a
// reservation set, apply mutate, render, write atomically, reload, and on
// reload failure restore the pre-rewrite bytes from an in-memory snapshot
// (spec.md §4.4.2).
func (m *Manager) rewrite(ctx context.Context, mutate func(map[string]reservation)) error {
	if err := m.mu.Lock(ctx); err != nil {
		return ggerr.Wrap(ggerr.KindTransient, "dhcp.lock", err, "acquire config lock")
	}
	defer m.mu.Unlock(ctx) //nolint:errcheck

	snapshot, err := os.ReadFile(m.cfg.ConfigPath)
	if err != nil && !os.IsNotExist(err) {
		return ggerr.Wrap(ggerr.KindFatal, "dhcp.read_config", err, "read dhcp config")
	}

	prefix, reservations, suffix := parseManagedSection(string(snapshot))
	mutate(reservations)
	rendered := render(prefix, suffix, reservations, m.cfg.TFTPHost)

	if err := utils.AtomicWriteFile(m.cfg.ConfigPath, []byte(rendered), 0o644); err != nil {
		return ggerr.Wrap(ggerr.KindFatal, "dhcp.write_config", err, "write dhcp config")
	}

	if err := m.reload(ctx); err != nil {
		// Reload failed: restore the pre-rewrite bytes so the daemon's live
		// config and the on-disk file never diverge, then surface ConfigError.
		if len(snapshot) > 0 {
			if restoreErr := utils.AtomicWriteFile(m.cfg.ConfigPath, snapshot, 0o644); restoreErr != nil {
				return ggerr.Config("dhcp.restore_failed", fmt.Errorf("reload failed (%w) and restore failed: %v", err, restoreErr))
			}
		}
		return ggerr.Config("dhcp.reload_failed", err)
	}
	return nil
}

// reloadPollInterval is how often reload retries the reload command while
// waiting for the daemon to acknowledge it within ReloadTimeout.
const reloadPollInterval = 250 * time.Millisecond

// reload invokes the configured daemon reload command, retrying through
// transient failures (the daemon may still be finishing a prior reload)
// until it succeeds or ReloadTimeout elapses; a non-zero exit past that
// deadline is a ConfigError (spec.md §4.4.2 "reload").
func (m *Manager) reload(ctx context.Context) error {
	if len(m.cfg.ReloadCommand) == 0 {
		return nil
	}
	timeout := m.cfg.ReloadTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	waitErr := utils.WaitFor(cctx, timeout, reloadPollInterval, func() (bool, error) {
		cmd := exec.CommandContext(cctx, m.cfg.ReloadCommand[0], m.cfg.ReloadCommand[1:]...) //nolint:gosec // reload command is operator-configured, not user input
		out, runErr := cmd.CombinedOutput()
		if runErr != nil {
			lastErr = fmt.Errorf("reload command failed: %w: %s", runErr, strings.TrimSpace(string(out)))
			return false, nil // not yet acknowledged, retry until ReloadTimeout
		}
		return true, nil
	})
	if waitErr != nil {
		if lastErr != nil {
			return lastErr
		}
		return waitErr
	}
	return nil
}

// parseManagedSection splits raw into the verbatim prefix/suffix outside the
// sentinels and the set of host reservations found inside them. Content
// outside the sentinels is preserved byte-for-byte across edits (spec.md
// §4.4.2 "everything outside is preserved verbatim").
func parseManagedSection(raw string) (prefix string, reservations map[string]reservation, suffix string) {
	reservations = map[string]reservation{}
	begin := strings.Index(raw, beginSentinel)
	end := strings.Index(raw, endSentinel)
	if begin == -1 || end == -1 || end < begin {
		return raw, reservations, ""
	}

	prefix = raw[:begin]
	// render re-emits the newline that ends the END sentinel line.
	suffix = strings.TrimPrefix(raw[end+len(endSentinel):], "\n")
	body := raw[begin+len(beginSentinel) : end]

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "host ") {
			continue
		}
		if r, id, ok := parseHostLine(line); ok {
			reservations[id] = r
		}
	}
	return prefix, reservations, suffix
}

// parseHostLine recovers a reservation from a previously-rendered
// `host <hostname> { hardware ethernet <mac>; fixed-address <ip>; }` line.
// The machine ID isn't stored in the rendered line, so reservations are
// keyed by hostname, the same key AddReservation and RemoveReservation use;
// a hostname collision across two machine IDs is already prevented by the
// unique-hostname constraint in the catalog.
func parseHostLine(line string) (reservation, string, bool) {
	var hostname, mac, ip string
	_, err := fmt.Sscanf(line, "host %s { hardware ethernet %s fixed-address %s }", &hostname, &mac, &ip)
	if err != nil {
		return reservation{}, "", false
	}
	mac = strings.TrimSuffix(mac, ";")
	ip = strings.TrimSuffix(ip, ";")
	return reservation{hostname: hostname, mac: mac, ip: ip}, hostname, true
}

// render produces the full configuration file text: the verbatim prefix,
// the managed section (global option-93 block then sorted host entries),
// and the verbatim suffix.
func render(prefix, suffix string, reservations map[string]reservation, tftpHost string) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		if !strings.HasSuffix(prefix, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString(beginSentinel)
	b.WriteString("\n")
	b.WriteString(optionBlock(tftpHost))

	ids := make([]string, 0, len(reservations))
	for id := range reservations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := reservations[id]
		fmt.Fprintf(&b, "host %s { hardware ethernet %s; fixed-address %s; }\n", r.hostname, r.mac, r.ip)
	}

	b.WriteString(endSentinel)
	b.WriteString("\n")
	b.WriteString(suffix)
	return b.String()
}

// optionBlock renders the global option-93 architecture-steering block:
// next-server points at the TFTP host, and a class per known architecture
// selects its loader filename (spec.md §4.4.2).
func optionBlock(tftpHost string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "next-server %s;\n", tftpHost)
	b.WriteString(fmt.Sprintf("if option architecture-type = 00:00 { filename %q; }\n", archLoader[iana.INTEL_X86PC]))
	b.WriteString(fmt.Sprintf("elsif option architecture-type = 00:06 { filename %q; }\n", archLoader[iana.EFI_IA32]))
	b.WriteString(fmt.Sprintf("elsif option architecture-type = 00:07 { filename %q; }\n", archLoader[iana.EFI_BC]))
	b.WriteString(fmt.Sprintf("elsif option architecture-type = 00:09 { filename %q; }\n", archLoader[iana.EFI_X86_64]))
	b.WriteString(fmt.Sprintf("else { filename %q; }\n", defaultLoader))
	return b.String()
}

// sanitizeHostname falls back to the machine ID when hostname is empty, so
// a reservation can always be rendered as a valid `host` block name.
func sanitizeHostname(hostname, machineID string) string {
	if hostname == "" {
		return machineID
	}
	return hostname
}
