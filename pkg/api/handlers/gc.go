package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/chunkvault/chunkvault/pkg/coordinator"
	"github.com/chunkvault/chunkvault/pkg/gc"
	"github.com/chunkvault/chunkvault/pkg/ledger"
	"github.com/chunkvault/chunkvault/pkg/scheduler"
)

// GCHandler serves the collection admin endpoints.
type GCHandler struct {
	scheduler *scheduler.Scheduler
	ledger    *ledger.Ledger
	coord     coordinator.Coordinator
}

// NewGCHandler creates collection admin handlers.
func NewGCHandler(sched *scheduler.Scheduler, ldg *ledger.Ledger, coord coordinator.Coordinator) *GCHandler {
	return &GCHandler{scheduler: sched, ledger: ldg, coord: coord}
}

// TriggerRunRequest is the body of POST /api/v1/gc/runs.
type TriggerRunRequest struct {
	// DryRun reports what would be deleted without touching anything.
	DryRun bool `json:"dry_run"`

	// Strategy overrides the configured strategy for this run.
	Strategy string `json:"strategy,omitempty"`

	// GracePeriodOverride shortens the grace period for this run, as a
	// duration string ("24h", "90m"). Only honored on explicit requests
	// like this one, never applied to scheduled runs.
	GracePeriodOverride string `json:"grace_period_override,omitempty"`

	// BatchSizeOverride replaces the configured batch size for this run.
	BatchSizeOverride int `json:"batch_size_override,omitempty"`
}

// TriggerRun handles POST /api/v1/gc/runs: run a collection now.
func (h *GCHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req TriggerRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
			return
		}
	}

	opts := &gc.Options{
		DryRun:    req.DryRun,
		Strategy:  req.Strategy,
		BatchSize: req.BatchSizeOverride,
		Trigger:   scheduler.TriggerManual,
	}
	if req.GracePeriodOverride != "" {
		override, err := time.ParseDuration(req.GracePeriodOverride)
		if err != nil || override <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid grace_period_override"))
			return
		}
		opts.GraceOverride = override
	}

	stats, err := h.scheduler.TriggerNow(r.Context(), opts)
	switch {
	case errors.Is(err, scheduler.ErrNotLeader):
		writeJSON(w, http.StatusConflict, errorResponse(err.Error()))
		return
	case errors.Is(err, ledger.ErrHalted):
		writeJSON(w, http.StatusConflict, errorResponse("collection is halted; resume first or use dry_run"))
		return
	case errors.Is(err, gc.ErrUnknownStrategy), errors.Is(err, gc.ErrNoRootWalker):
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, okResponse(stats))
}

// StatusResponse is the payload of GET /api/v1/gc/status.
type StatusResponse struct {
	LastRunAt        *time.Time `json:"last_run_at"`
	NextScheduledAt  *time.Time `json:"next_scheduled_at"`
	OrphanedCount    int64      `json:"orphaned_count"`
	ReclaimableBytes int64      `json:"reclaimable_bytes"`
	LockHolder       string     `json:"lock_holder,omitempty"`
	Halted           bool       `json:"halted"`
}

// Status handles GET /api/v1/gc/status.
func (h *GCHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state, err := h.ledger.GetSchedulerState(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	orphaned, err := h.ledger.PendingCount(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	reclaimable, err := h.ledger.ReclaimableBytes(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	holder, err := h.coord.Holder(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, okResponse(StatusResponse{
		LastRunAt:        state.LastRunAt,
		NextScheduledAt:  state.NextScheduledAt,
		OrphanedCount:    orphaned,
		ReclaimableBytes: reclaimable,
		LockHolder:       holder,
		Halted:           state.Halted,
	}))
}

// History handles GET /api/v1/gc/runs: past runs, most recent first.
// Query params: limit (default 50), offset.
func (h *GCHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	runs, err := h.ledger.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(runs))
}

// HaltRequest is the body of POST /api/v1/gc/halt.
type HaltRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Halt handles POST /api/v1/gc/halt: emergency stop. Clears the pending
// set and disables scheduled runs until resume.
func (h *GCHandler) Halt(w http.ResponseWriter, r *http.Request) {
	var req HaltRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "operator halt"
	}

	if err := h.ledger.Halt(r.Context(), req.Reason); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]bool{"halted": true}))
}

// Resume handles POST /api/v1/gc/resume: re-enable collection. The pending
// set stays empty until decrements or a sweep repopulate it.
func (h *GCHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Resume(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]bool{"halted": false}))
}
