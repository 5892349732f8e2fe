package iscsi

import (
	"fmt"
	"strings"
	"time"
)

// TargetIQN formats a target IQN (spec.md §3 "iqn.<year>.<org>:target-<machine-slug>").
func TargetIQN(org string, year int, machineSlug string) string {
	return fmt.Sprintf("iqn.%d.%s:target-%s", year, org, machineSlug)
}

// InitiatorIQN formats the initiator IQN derived from a machine's MAC
// address (spec.md §4.3 "iqn.<year>.<org>:initiator-<mac-no-colons>").
func InitiatorIQN(org string, year int, macAddress string) string {
	return fmt.Sprintf("iqn.%d.%s:initiator-%s", year, org, strings.ReplaceAll(macAddress, ":", ""))
}

// CurrentYear is a seam so IQN generation at call sites can be exercised
// deterministically by tests without pinning a real clock dependency;
// production call sites use time.Now().Year().
func CurrentYear() int { return time.Now().Year() }
