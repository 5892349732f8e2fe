// Package session describes progress events for the session state machine
// (spec.md §4.5), fed to the API layer's WebSocket channel (SPEC_FULL.md
// §11, gorilla/websocket).
package session

import "github.com/ggnet/ggnet-core/types"

// Phase names the state-machine step an event reports on.
type Phase int

const (
	PhaseClaimed      Phase = iota // CAS-claimed the machine, session REQUESTED.
	PhaseProvisioning              // target+boot-chain creation under way.
	PhaseActive                    // session reached ACTIVE.
	PhaseStopping                  // stop_session began tearing down.
	PhaseStopped                   // session reached a terminal state.
)

// Event describes a single session-lifecycle transition.
type Event struct {
	Phase     Phase
	SessionID string
	Status    types.SessionStatus
	Err       string // populated when Status is FAILED
}
