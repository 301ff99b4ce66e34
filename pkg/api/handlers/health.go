package handlers

import (
	"net/http"

	"github.com/chunkvault/chunkvault/pkg/ledger"
	"github.com/chunkvault/chunkvault/pkg/store"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store  store.Store
	ledger *ledger.Ledger
}

// NewHealthHandler creates health probe handlers over the given backends.
func NewHealthHandler(chunkStore store.Store, ldg *ledger.Ledger) *HealthHandler {
	return &HealthHandler{store: chunkStore, ledger: ldg}
}

// Liveness reports that the process is up. It never touches the backends,
// so a wedged store cannot make the orchestrator restart-loop the process.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "chunkvault",
	}))
}

// Readiness reports whether the store and the ledger can serve traffic.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil || h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("backends not initialized"))
		return
	}
	if err := h.ledger.HealthCheck(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("ledger: "+err.Error()))
		return
	}
	if err := h.store.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("store: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(nil))
}
