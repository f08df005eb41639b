// Package handler provides HTTP handlers for the pipeline status API.
// This is the thin read surface over the live pipeline — alert CRUD and
// user management live with the external alert-management service.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/albapepper/matchpulse/internal/api/respond"
	"github.com/albapepper/matchpulse/internal/config"
	"github.com/albapepper/matchpulse/internal/db"
	"github.com/albapepper/matchpulse/internal/dispatch"
	"github.com/albapepper/matchpulse/internal/scheduler"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	pool       *db.Pool
	sched      *scheduler.Scheduler
	dispatcher *dispatch.Dispatcher
	cfg        *config.Config
}

// New creates a Handler with shared dependencies.
func New(pool *db.Pool, sched *scheduler.Scheduler, dispatcher *dispatch.Dispatcher, cfg *config.Config) *Handler {
	return &Handler{
		pool:       pool,
		sched:      sched,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "MatchPulse API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetLiveMatches returns the latest snapshot for every tracked match.
// Snapshots served during an upstream outage carry stale=true rather than
// disappearing.
// @Summary Live match snapshots
// @Tags pipeline
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/matches/live [get]
func (h *Handler) GetLiveMatches(w http.ResponseWriter, r *http.Request) {
	snapshots := h.sched.LiveSnapshots()
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"count":   len(snapshots),
		"matches": snapshots,
	})
}

// GetPipelineHealth returns the pipeline health counters.
// @Summary Pipeline health counters
// @Tags pipeline
// @Produce json
// @Success 200 {object} scheduler.Health
// @Router /api/v1/pipeline/health [get]
func (h *Handler) GetPipelineHealth(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.sched.Health())
}

// testDispatchRequest is the body for POST /api/v1/dispatch/test.
type testDispatchRequest struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// TestDispatch sends a manual notification for operational verification.
// @Summary Test notification dispatch
// @Tags pipeline
// @Accept json
// @Produce json
// @Success 200 {object} dispatch.Result
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/dispatch/test [post]
func (h *Handler) TestDispatch(w http.ResponseWriter, r *http.Request) {
	var req testDispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if req.Channel == "" || req.Recipient == "" {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "channel and recipient are required")
		return
	}
	if req.Message == "" {
		req.Message = "MatchPulse test notification"
	}

	result := h.dispatcher.Dispatch(r.Context(), req.Channel, req.Recipient, req.Message)
	respond.WriteJSONObject(w, http.StatusOK, result)
}
