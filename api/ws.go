package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ggnet/ggnet-core/internal/obslog"
	"github.com/ggnet/ggnet-core/progress"
	progsession "github.com/ggnet/ggnet-core/progress/session"
)

var wsLogger = obslog.WithFunc("api.SessionHub")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is the UI's concern, not the core's (spec.md §1 "the HTTP/
	// WebSocket surface itself" is out of scope beyond the operations
	// listed) — accept every origin here and let a fronting proxy restrict
	// it if needed.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// SessionHub fans session-lifecycle events out to every connected
// WebSocket client (spec.md §6 "WebSocket channel emitting session state
// transitions"). It implements progress.Tracker so the Orchestrator can be
// constructed with it directly.
type SessionHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan progsession.Event
}

var _ progress.Tracker = (*SessionHub)(nil)

// NewSessionHub creates an empty hub.
func NewSessionHub() *SessionHub {
	return &SessionHub{clients: map[*websocket.Conn]chan progsession.Event{}}
}

// OnEvent implements progress.Tracker; non-session events are ignored.
func (h *SessionHub) OnEvent(e any) {
	ev, ok := e.(progsession.Event)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			// Slow consumer: drop the event rather than block the
			// orchestrator's hot path on a stalled WebSocket client.
		}
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects.
func (h *SessionHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsLogger.Warnf(r.Context(), "upgrade failed: %v", err)
		return
	}
	defer conn.Close() //nolint:errcheck

	ch := make(chan progsession.Event, 32)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		close(ch)
	}()

	// Drain client-initiated frames (pings, close) on their own goroutine
	// so a read failure tells us promptly to stop writing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(wireEventFrom(ev)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// wireEvent is the JSON shape sent over the WebSocket; progsession.Phase is
// an int enum internally, serialised as its name for a stable wire contract.
type wireEvent struct {
	Phase     string `json:"phase"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Err       string `json:"error,omitempty"`
}

func wireEventFrom(ev progsession.Event) wireEvent {
	return wireEvent{Phase: phaseName(ev.Phase), SessionID: ev.SessionID, Status: string(ev.Status), Err: ev.Err}
}

func phaseName(p progsession.Phase) string {
	switch p {
	case progsession.PhaseClaimed:
		return "claimed"
	case progsession.PhaseProvisioning:
		return "provisioning"
	case progsession.PhaseActive:
		return "active"
	case progsession.PhaseStopping:
		return "stopping"
	case progsession.PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
