package handler

import (
	"net/http"

	"github.com/contentpress/bakerd/internal/executor"
)

// ExecutorHandler serves a human-readable JSON snapshot of the task
// executor. Raw Prometheus metrics (counters, histograms) are available at
// /metrics via promhttp.Handler and are separate from this endpoint.
type ExecutorHandler struct {
	pool *executor.Pool
}

func NewExecutorHandler(pool *executor.Pool) *ExecutorHandler {
	return &ExecutorHandler{pool: pool}
}

// Snapshot handles GET /api/v1/executor
func (h *ExecutorHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	counts := h.pool.StateCounts()
	byState := make(map[string]int, len(counts))
	for state, n := range counts {
		byState[string(state)] = n
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"queue_depth": h.pool.Depth(),
		"tasks":       byState,
	})
}
