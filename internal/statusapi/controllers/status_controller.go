package controllers

import (
	"encoding/json"
	"net/http"

	"ringnode/core"
)

// StatusController provides read-only HTTP introspection over a running
// Orchestrator: health, contribution, and topology, mirroring the debug
// surface an external host process would poll to supervise a node.
type StatusController struct {
	orch *core.Orchestrator
}

func NewStatusController(orch *core.Orchestrator) *StatusController {
	return &StatusController{orch: orch}
}

type healthResponse struct {
	State     string `json:"state"`
	IsHealthy bool   `json:"is_healthy"`
}

func (sc *StatusController) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		State:     sc.orch.State().String(),
		IsHealthy: sc.orch.IsHealthy(),
	}
	writeJSON(w, resp)
}

func (sc *StatusController) Contribution(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, sc.orch.Meter().Snapshot())
}

func (sc *StatusController) Topology(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, sc.orch.CachedTopology())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
