package api

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ggnet/ggnet-core/bootchain/ipxe"
	"github.com/ggnet/ggnet-core/internal/ggerr"
	"github.com/ggnet/ggnet-core/store"
	"github.com/ggnet/ggnet-core/types"
)

// machineHandlers implements the /machines routes of spec.md §6.
type machineHandlers struct {
	st   *store.Store
	ipxe *ipxe.Writer
}

func (h *machineHandlers) routes(r chi.Router, requireOperator, requireViewer func(http.Handler) http.Handler) {
	r.With(requireViewer).Get("/machines", h.list)
	r.With(requireOperator).Post("/machines", h.create)
	r.With(requireOperator).Put("/machines/{id}", h.update)
	r.With(requireOperator).Delete("/machines/{id}", h.delete)
	r.With(requireViewer).Get("/machines/{id}/boot-script", h.bootScript)
}

func (h *machineHandlers) list(w http.ResponseWriter, r *http.Request) {
	machines, err := h.st.ListMachines(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, machines)
}

type createMachineRequest struct {
	Hostname     string            `json:"hostname"`
	MACAddress   string            `json:"mac_address"`
	IPAddress    string            `json:"ip_address"`
	BootMode     types.BootMode     `json:"boot_mode"`
	FirmwareArch types.FirmwareArch `json:"firmware_arch"`
	CPU          string            `json:"cpu"`
	RAMBytes     int64             `json:"ram_bytes"`
	NIC          string            `json:"nic"`
}

func (h *machineHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createMachineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: err.Error()})
		return
	}
	m := &types.Machine{
		ID:           uuid.NewString(),
		Hostname:     req.Hostname,
		MACAddress:   req.MACAddress,
		IPAddress:    req.IPAddress,
		BootMode:     req.BootMode,
		FirmwareArch: req.FirmwareArch,
		Status:       types.MachineStatusActive,
		CPU:          req.CPU,
		RAMBytes:     req.RAMBytes,
		NIC:          req.NIC,
	}
	if err := h.st.CreateMachine(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *machineHandlers) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := h.st.GetMachine(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createMachineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: err.Error()})
		return
	}
	m.Hostname, m.MACAddress, m.IPAddress = req.Hostname, req.MACAddress, req.IPAddress
	m.BootMode, m.FirmwareArch = req.BootMode, req.FirmwareArch
	m.CPU, m.RAMBytes, m.NIC = req.CPU, req.RAMBytes, req.NIC
	if err := h.st.UpdateMachine(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *machineHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := h.st.GetMachine(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.st.GetActiveSessionForMachine(r.Context(), id); err == nil {
		writeError(w, ggerr.Conflict("machine.has_active_session", "machine has a non-terminal session"))
		return
	} else if !ggerr.Is(err, ggerr.KindNotFound) {
		writeError(w, err)
		return
	}
	m.Status = types.MachineStatusInactive
	if err := h.st.UpdateMachine(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bootScript serves the iPXE script text for the machine's current active
// session (spec.md §6 "GET /machines/{id}/boot-script").
func (h *machineHandlers) bootScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := h.st.GetMachine(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := os.ReadFile(h.ipxe.ScriptPath(m))
	if err != nil {
		writeError(w, ggerr.NotFound("machine.no_boot_script", "machine has no boot script"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
